// internal/game/errors.go
package game

import "fmt"

// RejectionKind classifies why an action was refused. Validation, not-found
// and conflict rejections leave the session untouched and are reported only to
// the acting connection; session rejections (bad resume token) require the
// client to restart the join flow.
type RejectionKind string

const (
	RejectValidation RejectionKind = "validation"
	RejectNotFound   RejectionKind = "not_found"
	RejectConflict   RejectionKind = "conflict"
	RejectSession    RejectionKind = "session"
)

// Rejection is the typed error returned by every rules-engine operation.
type Rejection struct {
	Kind   RejectionKind
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func rejectf(kind RejectionKind, format string, args ...interface{}) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...interface{}) *Rejection {
	return rejectf(RejectValidation, format, args...)
}

func conflictf(format string, args ...interface{}) *Rejection {
	return rejectf(RejectConflict, format, args...)
}

func notFoundf(format string, args ...interface{}) *Rejection {
	return rejectf(RejectNotFound, format, args...)
}
