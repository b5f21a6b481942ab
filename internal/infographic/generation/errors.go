package generation

import (
	"context"
	"errors"
	"net"
)

// Provider errors are classified by wrapping one of these sentinels.
var (
	ErrTransient    = errors.New("transient provider error")
	ErrInvalid      = errors.New("invalid request")
	ErrUnknownModel = errors.New("unknown model")
	ErrUnauthorized = errors.New("provider rejected credentials")
	ErrEmptyOutput  = errors.New("provider returned no output")
)

func isTransient(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isUnknownModel(err error) bool {
	return errors.Is(err, ErrUnknownModel)
}
