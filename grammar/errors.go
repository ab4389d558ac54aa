package grammar

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionMismatch is matched by every *VersionMismatchError.
	ErrVersionMismatch = errors.New("incompatible table format version")
	// ErrCorruptTables reports a binary table file that cannot be decoded.
	ErrCorruptTables = errors.New("corrupt parse tables")
)

// VersionMismatchError reports a table format version outside the range
// this build understands.
type VersionMismatchError struct {
	Got      uint16
	Min, Max uint16
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("table format version %d not in supported range [%d, %d]", e.Got, e.Min, e.Max)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// CheckVersion returns a *VersionMismatchError if v cannot be used with
// this build.
func CheckVersion(v uint16) error {
	if v < MinCompatibleVersion || v > FormatVersion {
		return &VersionMismatchError{Got: v, Min: MinCompatibleVersion, Max: FormatVersion}
	}
	return nil
}

// CompileError reports an invalid grammar.
type CompileError struct {
	Rule    string
	Message string
}

func (e *CompileError) Error() string {
	if e.Rule == "" {
		return "compile grammar: " + e.Message
	}
	return fmt.Sprintf("compile grammar: rule %s: %s", e.Rule, e.Message)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptTables, fmt.Sprintf(format, args...))
}
