package loader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDataSource is the cause when a resource has no source to try.
var ErrNoDataSource = errors.New("no data source succeeded")

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// Attempt records one failed source.
type Attempt struct {
	URL string
	Err error
}

// DataSourceExhaustedError is returned when every source of a resource failed.
// It unwraps to the last failure, or ErrNoDataSource when nothing was tried.
type DataSourceExhaustedError struct {
	Resource Resource
	Attempts []Attempt
	Last     error
}

func (e *DataSourceExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("loading %s: %v", e.Resource, ErrNoDataSource)
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Err.Error()
	}
	return fmt.Sprintf("loading %s: all %d sources failed: %s",
		e.Resource, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *DataSourceExhaustedError) Unwrap() error {
	if e.Last == nil {
		return ErrNoDataSource
	}
	return e.Last
}

// IsExhausted reports whether err is (or wraps) a DataSourceExhaustedError.
func IsExhausted(err error) bool {
	var target *DataSourceExhaustedError
	return errors.As(err, &target)
}
