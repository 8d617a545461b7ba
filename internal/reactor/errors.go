package reactor

import "errors"

// FatalExit is the sentinel error a timer, signal, or cross-thread callback
// returns to request termination of the owning Dispatcher's loop. Every
// other error or panic from a callback is caught, logged, and swallowed;
// FatalExit is the one that propagates and unwinds the loop.
var FatalExit = errors.New("reactor: fatal exit requested")

// ProgrammerError marks a misuse of the reactor's single-owner-thread
// contract, such as cancelling a Timer from a goroutine other than the
// Dispatcher's owner. It is logged with a stack trace; the reactor does not
// crash on it, but behavior of the offending Timer/Bridge is undefined
// thereafter.
type ProgrammerError struct {
	Op  string
	Err error
}

func (e *ProgrammerError) Error() string {
	if e.Err != nil {
		return "reactor: programmer error in " + e.Op + ": " + e.Err.Error()
	}
	return "reactor: programmer error in " + e.Op
}

func (e *ProgrammerError) Unwrap() error { return e.Err }
