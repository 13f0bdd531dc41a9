package shared

import "errors"

// ErrConflict indicates a transient serialization conflict; callers may
// retry the whole operation once before surfacing the failure.
var ErrConflict = errors.New("concurrent update conflict")
