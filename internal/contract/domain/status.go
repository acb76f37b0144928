package domain

import "time"

type SignatureStatus string

const (
	StatusDraft      SignatureStatus = "Draft"
	StatusInApproval SignatureStatus = "In Approval Process"
	StatusCancelled  SignatureStatus = "Cancelled"
	StatusDeclined   SignatureStatus = "Declined"
	StatusActivated  SignatureStatus = "Activated"
	StatusExpired    SignatureStatus = "Expired"
	StatusError      SignatureStatus = "Error"
)

// Terminal statuses no longer change through signer events.
func (s SignatureStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusDeclined, StatusActivated, StatusExpired:
		return true
	default:
		return false
	}
}

// Effective is the status reported to readers: an open signature past its
// expiry is Expired whatever the stored column says.
func (s SignatureStatus) Effective(now, expiresAt time.Time) SignatureStatus {
	if s.Terminal() || expiresAt.IsZero() || !now.After(expiresAt) {
		return s
	}
	return StatusExpired
}

// Aggregate derives the signature status from its signers. A decline wins
// over an error, an error over progress.
func Aggregate(audits []ContractSignerAudit) SignatureStatus {
	if len(audits) == 0 {
		return StatusInApproval
	}
	signed := 0
	errored := false
	for _, a := range audits {
		if a.DeclinedAt != nil {
			return StatusDeclined
		}
		if a.SignedAt != nil {
			signed++
			continue
		}
		if a.ErroredAt != nil {
			errored = true
		}
	}
	switch {
	case errored:
		return StatusError
	case signed == len(audits):
		return StatusActivated
	default:
		return StatusInApproval
	}
}
