package core

// Lobby status word bits.
const (
	statusInGame = 1 << 0
	statusAway   = 1 << 1
	statusAccess = 1 << 5
	statusBot    = 1 << 6
)

// Access is the privilege tier reported to remote tools.
type Access int

const (
	// AccessUnknown means the user is not online.
	AccessUnknown Access = iota
	// AccessNormal is a regular lobby user.
	AccessNormal
	// AccessModerator is a lobby moderator.
	AccessModerator
	// AccessAdmin is a user listed as a bot administrator.
	AccessAdmin
)

// Client is a lobby user as seen by the bot.
type Client struct {
	Name   string
	Status int
	Admin  bool
}

// NewClient constructs a client with an empty status word.
func NewClient(name string) *Client {
	return &Client{Name: name}
}

// Moderator reports whether the client has lobby moderator rights.
func (c *Client) Moderator() bool {
	return c.Admin || c.Status&statusAccess != 0
}

// InGame reports the in-game status bit.
func (c *Client) InGame() bool {
	return c.Status&statusInGame != 0
}

// Away reports the away status bit.
func (c *Client) Away() bool {
	return c.Status&statusAway != 0
}

// Bot reports whether the lobby flags this account as a bot.
func (c *Client) Bot() bool {
	return c.Status&statusBot != 0
}

// Access returns the client's tier.
func (c *Client) Access() Access {
	switch {
	case c == nil:
		return AccessUnknown
	case c.Admin:
		return AccessAdmin
	case c.Moderator():
		return AccessModerator
	default:
		return AccessNormal
	}
}
