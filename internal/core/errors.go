package core

import "errors"

var (
	ErrChannelExists   = errors.New("channel already registered")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNameEmpty       = errors.New("name is empty")
	ErrNameTooLong     = errors.New("name too long")
	ErrNameChars       = errors.New("name contains invalid characters")
)
