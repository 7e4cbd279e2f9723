package asidecache

import (
	"fmt"
)

// InvalidateError reports a partially failed namespace invalidation. Deletes
// already performed are not rolled back; the Deleted count returned alongside
// the error is accurate.
type InvalidateError struct {
	Namespace Namespace
	Scope     string
	ScanErr   error
	DelErr    error
}

func (e *InvalidateError) Error() string {
	target := string(e.Namespace)
	if e.Scope != "" {
		target += ":" + e.Scope
	}
	switch {
	case e.ScanErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: scan and delete failed: scan=%v; delete=%v",
			target, e.ScanErr, e.DelErr)
	case e.ScanErr != nil:
		return fmt.Sprintf("invalidate %q: scan failed: %v", target, e.ScanErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", target, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", target)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.ScanErr != nil {
		errs = append(errs, e.ScanErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
