// Package errors implements a module-scoped, numbered error taxonomy that
// can cross the wire (see protocol.Error) and be reconstructed on the other
// side without string matching.
package errors

import (
	"fmt"
	"sync"
)

// registeredError is a sentinel error registered under a module/code pair.
type registeredError struct {
	module  string
	code    uint32
	message string
}

func (e *registeredError) Error() string {
	return e.message
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]map[uint32]*registeredError)
)

// New registers and returns a new sentinel error under the given module and
// code. Panics if the (module, code) pair is already registered, since that
// indicates a programming error at package init time.
func New(module string, code uint32, message string) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	byCode, ok := registry[module]
	if !ok {
		byCode = make(map[uint32]*registeredError)
		registry[module] = byCode
	}
	if _, ok := byCode[code]; ok {
		panic(fmt.Sprintf("errors: module %s code %d already registered", module, code))
	}

	err := &registeredError{module: module, code: code, message: message}
	byCode[code] = err
	return err
}

// Code returns the (module, code) pair for err, if it (or something it
// wraps) was created via New. The zero value is returned for unregistered
// errors.
func Code(err error) (string, uint32) {
	type unwrapper interface {
		Unwrap() error
	}
	for err != nil {
		if re, ok := err.(*registeredError); ok {
			return re.module, re.code
		}
		u, ok := err.(unwrapper)
		if !ok {
			return "", 0
		}
		err = u.Unwrap()
	}
	return "", 0
}

// FromCode looks up a previously registered error by module and code,
// returning nil if no such error was registered.
func FromCode(module string, code uint32) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	byCode, ok := registry[module]
	if !ok {
		return nil
	}
	return byCode[code]
}
