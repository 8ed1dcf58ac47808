package gpu

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

var (
	errInvalidHandle   = core.ErrInvalidHandle
	errProtocolMisuse  = core.ErrProtocolMisuse
	errTooManyResource = core.ErrTooManyResources
	errPoolExhausted   = core.ErrPoolExhausted
	errUnsupported     = core.ErrUnsupported
)

// fatalf logs and panics with an error wrapping sentinel. Used for protocol
// misuse and invalid handles on the recording path.
func fatalf(sentinel error, format string, args ...interface{}) {
	err := fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	core.LogError("%v", err)
	panic(err)
}

// ifPanic treats a backend error as a native failure.
func ifPanic(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, core.ErrNativeFailure) {
		err = fmt.Errorf("%w: %w", core.ErrNativeFailure, err)
	}
	core.LogError("%v", err)
	panic(err)
}
