// Package sys holds types an embedder observes when a Module exits, independent of the WebAssembly core
// semantics implemented by the rest of this module.
package sys

import (
	"fmt"
)

// ExitError describes a module's request to terminate, e.g. via a WASI-style "proc_exit" host import. This is
// not a trap: it is a normal, expected way for a guest to signal it is done. No api.Function or api.Module
// call in this module returns one: api.Module.CloseWithExitCode does not report its exit code this way.
type ExitError struct {
	moduleName string
	exitCode   uint32
}

// NewExitError returns an ExitError for the given moduleName and exitCode.
func NewExitError(moduleName string, exitCode uint32) *ExitError {
	return &ExitError{moduleName: moduleName, exitCode: exitCode}
}

// ModuleName is the name of the module that exited.
func (e *ExitError) ModuleName() string { return e.moduleName }

// ExitCode is the value the module requested on exit. Convention (not enforced) is zero on success.
func (e *ExitError) ExitCode() uint32 { return e.exitCode }

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("module %q closed with exit_code(%d)", e.moduleName, e.exitCode)
}

// Is allows errors.Is(err, target) to match another *ExitError with the same moduleName and exitCode.
func (e *ExitError) Is(target error) bool {
	o, ok := target.(*ExitError)
	if !ok {
		return false
	}
	return e.moduleName == o.moduleName && e.exitCode == o.exitCode
}
