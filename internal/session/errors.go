package session

import (
	"fmt"

	"github.com/capturectl/capturectl/internal/errors"
)

var (
	// ErrInitialization is returned when the engine refuses to initialize.
	ErrInitialization = errors.NewStd("engine initialization failed")
	// ErrRecordingStart is returned when the engine reports an abnormal stop
	// instead of a start.
	ErrRecordingStart = errors.NewStd("recording failed to start")
	// ErrShutdown is returned when the engine transport fails to disconnect.
	ErrShutdown = errors.NewStd("engine shutdown failed")
	// ErrSignalMismatch is returned when output signals arrive out of order.
	ErrSignalMismatch = errors.NewStd("unexpected output signal")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current session state.
	ErrInvalidState = errors.NewStd("operation not allowed in current state")
)

// Engine init result codes with a known cause.
const (
	initCodeGraphicsRuntime = -2
	initCodeDriver          = -5
)

// InitCodeMessage explains a non-zero engine init result.
func InitCodeMessage(code int) string {
	switch code {
	case initCodeGraphicsRuntime:
		return "DirectX could not be found on your system. Please install the latest version of DirectX for your machine and try again"
	case initCodeDriver:
		return "failed to initialize the engine. Your video drivers may be out of date, or the engine may not be supported on your system"
	default:
		return fmt.Sprintf("an unknown error #%d was encountered while initializing the engine", code)
	}
}

func initError(code int) error {
	return errors.New(fmt.Errorf("%w: %s", ErrInitialization, InitCodeMessage(code))).
		Component("session").
		Category(errors.CategoryEngineInit).
		Context("init_code", code).
		Build()
}

func stateError(op string, state State) error {
	return errors.New(fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, state)).
		Component("session").
		Category(errors.CategoryState).
		Context("operation", op).
		Context("state", state.String()).
		Build()
}

func engineError(err error, category errors.ErrorCategory, op string) error {
	return errors.New(err).
		Component("session").
		Category(category).
		Context("operation", op).
		Build()
}
