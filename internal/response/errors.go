package response

import "errors"

// Error taxonomy for the durable-write path. The realtime path never
// surfaces these to the emitting connection; it logs and drops.
var (
	// ErrNotFound: the response document does not exist.
	ErrNotFound = errors.New("response not found")
	// ErrFieldNotFound: the fieldId is not part of the response's
	// fixed field set.
	ErrFieldNotFound = errors.New("field not found in response")
	// ErrForbidden: the acting user is not an active collaborator.
	ErrForbidden = errors.New("user is not an active collaborator")
	// ErrCompleted: a write was attempted against a completed
	// response. Completion is monotonic; the write is rejected.
	ErrCompleted = errors.New("cannot update a completed response")
	// ErrFormInactive: the form was deactivated by its creator.
	ErrFormInactive = errors.New("form is not active")
	// ErrConflict: a duplicate response creation raced this one. The
	// store resolves it transparently by re-joining the winner's
	// document; callers outside the store should never observe it.
	ErrConflict = errors.New("response already exists for form")
)
