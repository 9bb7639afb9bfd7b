package helpers

import (
	"errors"
	"fmt"
	"strings"
)

// TestContext is a minimal interface for types like *testing.T representing a test that can fail.
// The flow test utilities only depend on this, so they can be exercised with a TestRecorder.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
}

// TestRecorder is a TestContext that only records what happened.
type TestRecorder struct {
	Errors     []string
	Terminated bool

	// PanicOnTerminate makes FailNow panic with the recorder itself, which is the closest
	// equivalent to the way testing.T stops the current goroutine.
	PanicOnTerminate bool
}

func (r *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(msgFormat, msgArgs...))
}

func (r *TestRecorder) FailNow() {
	r.Terminated = true
	if r.PanicOnTerminate {
		panic(r)
	}
}

// Helper is a no-op, so that a TestRecorder can stand in for callers that mark helpers.
func (r *TestRecorder) Helper() {}

// Failed returns true if any error was recorded or FailNow was called.
func (r *TestRecorder) Failed() bool {
	return len(r.Errors) != 0 || r.Terminated
}

// Err returns all recorded errors joined into one, or nil.
func (r *TestRecorder) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.Errors, ", "))
}

// RunRecorded calls action with a recorder that panics on FailNow, and recovers from that panic,
// so that a helper which terminates the test can be observed without stopping the caller.
func RunRecorded(action func(*TestRecorder)) *TestRecorder {
	r := &TestRecorder{PanicOnTerminate: true}
	func() {
		defer func() {
			if p := recover(); p != nil && p != r {
				panic(p)
			}
		}()
		action(r)
	}()
	return r
}
