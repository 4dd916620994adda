package core

import "sort"

// Channel is a lobby channel registered with the bot.
type Channel struct {
	Name         string
	Founder      string
	Operators    []string
	Topic        string
	Key          string
	AntiSpam     bool
	SpamSettings string
	// Static channels are always joined and have no founder workflow.
	Static bool
	Joined bool

	members map[string]struct{}
}

// NewChannel constructs an unjoined channel with no members.
func NewChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		members: make(map[string]struct{}),
	}
}

// LogName is the transcript the channel's traffic is appended to.
func (c *Channel) LogName() string {
	return "#" + c.Name + ".log"
}

// Locked returns true if the channel has a key set.
func (c *Channel) Locked() bool {
	return c.Key != ""
}

// IsFounder reports whether name founded this channel. Static channels have no founder.
func (c *Channel) IsFounder(name string) bool {
	return !c.Static && c.Founder != "" && c.Founder == name
}

// IsOperator reports whether name is on the operator list.
func (c *Channel) IsOperator(name string) bool {
	return c.operatorIndex(name) >= 0
}

func (c *Channel) operatorIndex(name string) int {
	for i, op := range c.Operators {
		if op == name {
			return i
		}
	}
	return -1
}

// AddOperator appends name to the operator list. Returns false on duplicates or when full.
func (c *Channel) AddOperator(name string) bool {
	if c.IsOperator(name) || len(c.Operators) >= MaxOperators {
		return false
	}
	c.Operators = append(c.Operators, name)
	return true
}

// RemoveOperator deletes name keeping the order of the others. Returns true if removed.
func (c *Channel) RemoveOperator(name string) bool {
	i := c.operatorIndex(name)
	if i < 0 {
		return false
	}
	c.Operators = append(c.Operators[:i], c.Operators[i+1:]...)
	return true
}

// RenameOperator replaces oldName in place, keeping its rank.
func (c *Channel) RenameOperator(oldName, newName string) bool {
	i := c.operatorIndex(oldName)
	if i < 0 {
		return false
	}
	if c.IsOperator(newName) {
		c.Operators = append(c.Operators[:i], c.Operators[i+1:]...)
		return true
	}
	c.Operators[i] = newName
	return true
}

// AddMember inserts a user into the member set. Returns true if newly added.
func (c *Channel) AddMember(name string) bool {
	if _, exists := c.members[name]; exists {
		return false
	}
	c.members[name] = struct{}{}
	return true
}

// RemoveMember deletes a user from the member set. Returns true if removed.
func (c *Channel) RemoveMember(name string) bool {
	if _, exists := c.members[name]; !exists {
		return false
	}
	delete(c.members, name)
	return true
}

// HasMember reports whether name is currently in the channel.
func (c *Channel) HasMember(name string) bool {
	_, ok := c.members[name]
	return ok
}

// ClearMembers empties the member set before a (re)join rebuilds it.
func (c *Channel) ClearMembers() {
	c.members = make(map[string]struct{})
}

// Members returns the sorted member names.
func (c *Channel) Members() []string {
	names := make([]string, 0, len(c.members))
	for name := range c.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
