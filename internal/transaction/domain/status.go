package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidStatusTransition = errors.New("invalid_status_transition")

// legalTransitions is the forward-only record lifecycle. Posted is terminal.
// A failed record re-enters the pipeline as the same row, so failed may move
// back to associated (after a successful re-resolve) or stay failed with an
// updated reason.
var legalTransitions = map[RecordStatus][]RecordStatus{
	StatusImported:   {StatusAssociated, StatusFailed},
	StatusAssociated: {StatusPosted, StatusFailed},
	StatusFailed:     {StatusAssociated, StatusFailed},
	StatusPosted:     {},
}

// AdvanceStatus validates the edge and mutates the record's status.
func AdvanceStatus(r *TransactionRecord, to RecordStatus) error {
	for _, allowed := range legalTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, r.Status, to)
}

// Fail advances the record to failed with a reason.
func Fail(r *TransactionRecord, reason string) error {
	if err := AdvanceStatus(r, StatusFailed); err != nil {
		return err
	}
	r.FailureReason = &reason
	return nil
}
