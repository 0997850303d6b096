package disposer

import (
	"context"
	"fmt"
	"io"
	"reflect"
)

type modeKind int

const (
	kindDefault modeKind = iota
	kindCall
	kindMethod
)

// Mode selects how a registered value is torn down.
type Mode struct {
	kind   modeKind
	method string
}

var (
	// Default uses the value's own teardown protocol (DisposeAll, Dispose,
	// Cancel, Close, Destroy, Disconnect, Stop) or treats it as inert data.
	Default = Mode{kind: kindDefault}

	// Call invokes the value as a function with no arguments.
	Call = Mode{kind: kindCall}
)

// Method invokes the named zero-argument method on the value.
func Method(name string) Mode {
	return Mode{kind: kindMethod, method: name}
}

func (m Mode) String() string {
	switch m.kind {
	case kindCall:
		return "call"
	case kindMethod:
		return "method(" + m.method + ")"
	default:
		return "default"
	}
}

// validate rejects values that can never be disposed under m.
func (m Mode) validate(value any) error {
	switch m.kind {
	case kindCall:
		switch value.(type) {
		case func(), func() error, context.CancelFunc:
			return nil
		}
		return fmt.Errorf("%w: %T is not callable", ErrInvalidArgument, value)
	case kindMethod:
		if m.method == "" {
			return fmt.Errorf("%w: empty method name", ErrInvalidArgument)
		}
		if value == nil {
			return fmt.Errorf("%w: nil value for method %s", ErrInvalidArgument, m.method)
		}
		fn := reflect.ValueOf(value).MethodByName(m.method)
		if !fn.IsValid() {
			return fmt.Errorf("%w: %T has no method %s", ErrInvalidArgument, value, m.method)
		}
		if fn.Type().NumIn() != 0 {
			return fmt.Errorf("%w: %T.%s takes arguments", ErrInvalidArgument, value, m.method)
		}
	}
	return nil
}

// Dispose runs the teardown of value according to mode. Panics are recovered
// and returned as errors.
func Dispose(value any, mode Mode) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cleanup panic (%T, %s): %v", value, mode, rec)
		}
	}()

	switch mode.kind {
	case kindCall:
		return call(value)
	case kindMethod:
		return callMethod(value, mode.method)
	default:
		return disposeDefault(value)
	}
}

func call(value any) error {
	switch fn := value.(type) {
	case func():
		fn()
		return nil
	case func() error:
		return fn()
	case context.CancelFunc:
		fn()
		return nil
	}
	return fmt.Errorf("%w: %T is not callable", ErrInvalidArgument, value)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callMethod(value any, name string) error {
	fn := reflect.ValueOf(value).MethodByName(name)
	if !fn.IsValid() {
		return fmt.Errorf("%w: %T has no method %s", ErrInvalidArgument, value, name)
	}
	out := fn.Call(nil)
	// The last result is honoured when it is an error.
	if n := len(out); n > 0 && out[n-1].Type().Implements(errorType) {
		if e, _ := out[n-1].Interface().(error); e != nil {
			return e
		}
	}
	return nil
}

type (
	registryLike  interface{ DisposeAll() error }
	disposerErr   interface{ Dispose() error }
	disposerPlain interface{ Dispose() }
	cancelerErr   interface{ Cancel() error }
	cancelerBool  interface{ Cancel() bool }
	cancelerPlain interface{ Cancel() }
	closerPlain   interface{ Close() }
	destroyer     interface{ Destroy() }
	disconnecter  interface{ Disconnect() }
	stopperBool   interface{ Stop() bool }
	stopperPlain  interface{ Stop() }
)

func disposeDefault(value any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case func(), func() error, context.CancelFunc:
		return call(v)
	case registryLike:
		return v.DisposeAll()
	case disposerErr:
		return v.Dispose()
	case disposerPlain:
		v.Dispose()
	case cancelerErr:
		return v.Cancel()
	case cancelerBool:
		v.Cancel()
	case cancelerPlain:
		v.Cancel()
	case io.Closer:
		return v.Close()
	case closerPlain:
		v.Close()
	case destroyer:
		v.Destroy()
	case disconnecter:
		v.Disconnect()
	case stopperBool:
		v.Stop()
	case stopperPlain:
		v.Stop()
	}
	// Anything else is inert data.
	return nil
}
