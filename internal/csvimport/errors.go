package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned for a file with no header row.
	ErrEmptyInput = errors.New("file is empty")

	// ErrUndecodable is returned when no supported encoding yields valid CSV.
	ErrUndecodable = errors.New("file is not valid CSV in any supported encoding")

	// ErrNoFormatDetected is returned when neither a known export layout nor
	// the generic heuristics match the header.
	ErrNoFormatDetected = errors.New("could not detect CSV format")
)

// FormatError rejects an upload as a whole. No accounts are imported when it
// is returned.
type FormatError struct {
	Columns []string // Normalized header, when one could be read.
	Err     error
}

func (e *FormatError) Error() string {
	if len(e.Columns) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (columns: %s)", e.Err, strings.Join(e.Columns, ", "))
}

func (e *FormatError) Unwrap() error { return e.Err }
