package cassync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAlreadyStarted is returned by Start on a running reconciler.
	ErrAlreadyStarted = errors.New("cassync: already started")
	// ErrSuperseded is returned by Execute when a newer Execute replaced the
	// request before it completed. The result was discarded.
	ErrSuperseded = errors.New("cassync: request superseded")
	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = errors.New("cassync: closed")
)

// SaveError wraps a persist failure. The saved baseline was not moved.
type SaveError struct {
	Snapshot Snapshot
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("cassync: persist failed (%d byte snapshot): %v", len(e.Snapshot), e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// ValidationError lists the params fields that failed their schema.
type ValidationError struct {
	Fields map[string]error
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e.Fields[n].Error())
	}
	return "cassync: invalid params: " + strings.Join(parts, "; ")
}

// InvalidateError collects per-key failures from an invalidation pass.
// Keys whose generation bump failed may still serve their old result.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
