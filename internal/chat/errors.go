package chat

import "errors"

var (
	ErrNotConnected    = errors.New("chat: not connected")
	ErrTransport       = errors.New("chat: transport failure")
	ErrPolicyViolation = errors.New("chat: rate policy violated")
)
