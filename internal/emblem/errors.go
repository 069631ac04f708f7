package emblem

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store.Get for unledgered entities.
var ErrNotFound = errors.New("emblem record not found")

// RejectReason identifies why a candidate failed validation. Rejections are
// routine pipeline outcomes, not operational errors.
type RejectReason string

// Validation rejection reasons.
const (
	RejectWrongType     RejectReason = "wrong_type"
	RejectUndecodable   RejectReason = "undecodable"
	RejectTooSmall      RejectReason = "too_small"
	RejectKnownIconSize RejectReason = "known_icon_size"
)

// RejectionError is returned by a Validator when a candidate is structurally
// retrievable but not acceptable as an emblem.
type RejectionError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("candidate rejected: %s", e.Reason)
	}
	return fmt.Sprintf("candidate rejected: %s (%s)", e.Reason, e.Detail)
}

// IsRejection reports whether err is a validation rejection and, if so,
// returns its reason.
func IsRejection(err error) (RejectReason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// StoreError marks persistence failures, which are fatal for the entity's
// commit and must surface to the operator rather than degrade silently.
type StoreError struct {
	EntityID string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store commit for entity %s: %v", e.EntityID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
