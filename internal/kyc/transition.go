package kyc

import (
	"fmt"

	"sak/pkg/domain"
)

type transition struct {
	From domain.KYCStatus
	To   domain.KYCStatus
}

// Review transitions available to anchors. Re-submission (rejected -> pending)
// goes through CreateKycRecord instead. A validated record is final.
var reviewTransitions = []transition{
	{domain.StatusPending, domain.StatusValidated},
	{domain.StatusPending, domain.StatusRejected},
	{domain.StatusRejected, domain.StatusValidated},
}

// TransitionError reports a review action that the current status does not allow.
type TransitionError struct {
	From domain.KYCStatus
	To   domain.KYCStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

func checkReviewTransition(from, to domain.KYCStatus) error {
	for _, t := range reviewTransitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
