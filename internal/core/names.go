package core

import "regexp"

const (
	// MaxChannelNameLength bounds registered channel names.
	MaxChannelNameLength = 20
	// MaxUsernameLength bounds any username the bot stores on behalf of a command.
	MaxUsernameLength = 30
	// MaxOperators bounds a channel's operator list.
	MaxOperators = 100
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_\[\]]+$`)

// ValidateChannelName checks a channel name without its leading '#'.
func ValidateChannelName(name string) error {
	switch {
	case name == "":
		return ErrNameEmpty
	case len(name) > MaxChannelNameLength:
		return ErrNameTooLong
	case !validName.MatchString(name):
		return ErrNameChars
	}
	return nil
}

// ValidKey reports whether key may be used as a channel password.
func ValidKey(key string) bool {
	return key == "*" || validName.MatchString(key)
}
