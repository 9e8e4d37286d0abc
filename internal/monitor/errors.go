package monitor

import (
	"errors"
	"fmt"
)

// SelectorMissError signals that a category page no longer matches the
// configured selectors. It is scoped to one category and never retried.
type SelectorMissError struct {
	Category string
	Selector string
}

func (e *SelectorMissError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("selector miss in category %q", e.Category)
	}
	return fmt.Sprintf("selector miss in category %q: %q matched nothing", e.Category, e.Selector)
}

// IsSelectorMiss reports whether err is (or wraps) a SelectorMissError.
func IsSelectorMiss(err error) bool {
	var miss *SelectorMissError
	return errors.As(err, &miss)
}

// StoreContextError signals that store selection failed for a ZIP. The
// whole ZIP is abandoned since subsequent cards cannot be attributed.
type StoreContextError struct {
	Zip string
	Err error
}

func (e *StoreContextError) Error() string {
	return fmt.Sprintf("store context for zip %s: %v", e.Zip, e.Err)
}

func (e *StoreContextError) Unwrap() error { return e.Err }

// TransientFetchError wraps timeouts and navigation errors that are worth
// retrying with backoff.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch of %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientFetchError.
func IsTransient(err error) bool {
	var transient *TransientFetchError
	return errors.As(err, &transient)
}

// PublishError wraps a snapshot export failure. History already persisted
// is unaffected; the export can be regenerated on the next cycle.
type PublishError struct {
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish snapshot %s: %v", e.Path, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
