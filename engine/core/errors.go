package core

import (
	"errors"
)

var (
	ErrPoolExhausted    = errors.New("resource pool exhausted")
	ErrInvalidHandle    = errors.New("invalid or stale resource handle")
	ErrProtocolMisuse   = errors.New("command buffer protocol misuse")
	ErrNativeFailure    = errors.New("native graphics api failure")
	ErrTooManyResources = errors.New("too many resources for descriptor set")
	ErrUnsupported      = errors.New("unsupported by backend")
	ErrInvalidConfig    = errors.New("invalid device configuration")
	ErrUnknown          = errors.New("unknown")
)
