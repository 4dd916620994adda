package lobby

import "errors"

var (
	// ErrLoginDenied is returned by Run when the server rejects the bot's credentials.
	ErrLoginDenied = errors.New("lobby: login denied")
	// ErrAgreementRequired is returned by Run when the server asks for a terms agreement.
	ErrAgreementRequired = errors.New("lobby: agreement confirmation required")
	// ErrShutdown is returned by Run after a moderator issued SHUTDOWN.
	ErrShutdown = errors.New("lobby: shutdown requested")
	// ErrNotConnected is returned by SendLine while there is no session.
	ErrNotConnected = errors.New("lobby: not connected")
)
