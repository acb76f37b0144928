package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
)

// signerState is the in-memory view of a signature's signers that events
// are folded into.
type signerState struct {
	signers []*contractdomain.ContractSignerDetails
	audits  map[snowflake.ID]*contractdomain.ContractSignerAudit
	touched map[snowflake.ID]bool
}

func newSignerState(signers []*contractdomain.ContractSignerDetails, audits []*contractdomain.ContractSignerAudit) *signerState {
	st := &signerState{
		signers: signers,
		audits:  make(map[snowflake.ID]*contractdomain.ContractSignerAudit, len(audits)),
		touched: map[snowflake.ID]bool{},
	}
	for _, a := range audits {
		st.audits[a.SignerID] = a
	}
	return st
}

func (st *signerState) bySignatureID(providerID string) *contractdomain.ContractSignerAudit {
	if providerID == "" {
		return nil
	}
	for _, signer := range st.signers {
		if signer.ProviderSignatureID != nil && *signer.ProviderSignatureID == providerID {
			return st.audits[signer.ID]
		}
	}
	return nil
}

// reset clears every derived field before a replay.
func (st *signerState) reset() {
	for id, a := range st.audits {
		a.LastViewedAt = nil
		a.LastRemindedAt = nil
		a.SignedAt = nil
		a.DeclinedAt = nil
		a.ErroredAt = nil
		a.LastStatusCode = ""
		a.LastError = ""
		a.LastEventAt = nil
		st.touched[id] = true
	}
}

func (st *signerState) list() []contractdomain.ContractSignerAudit {
	out := make([]contractdomain.ContractSignerAudit, 0, len(st.audits))
	for _, a := range st.audits {
		out = append(out, *a)
	}
	return out
}

// apply folds ev into the signer audits. It returns the status the event
// forces on the whole signature, or "" when the status follows the signers.
func (st *signerState) apply(ev *contractdomain.EventDetail) contractdomain.SignatureStatus {
	switch ev.EventType {
	case esign.EventSignatureRequestCanceled:
		return contractdomain.StatusCancelled
	case esign.EventSignatureRequestExpired:
		return contractdomain.StatusExpired
	case esign.EventSignatureRequestAllSigned:
		for id, a := range st.audits {
			latest(&a.SignedAt, ev.OccurredAt)
			st.touched[id] = true
		}
		return ""
	}

	audit := st.bySignatureID(ev.RelatedSignatureID)
	if audit == nil {
		return ""
	}
	switch ev.EventType {
	case esign.EventSignatureRequestViewed:
		latest(&audit.LastViewedAt, ev.OccurredAt)
	case esign.EventSignatureRequestReminded:
		latest(&audit.LastRemindedAt, ev.OccurredAt)
	case esign.EventSignatureRequestSigned:
		latest(&audit.SignedAt, ev.OccurredAt)
	case esign.EventSignatureRequestDeclined:
		latest(&audit.DeclinedAt, ev.OccurredAt)
	case esign.EventSignatureRequestEmailError, esign.EventSignatureRequestInvalid, esign.EventFileError:
		latest(&audit.ErroredAt, ev.OccurredAt)
	}
	if audit.LastEventAt == nil || !ev.OccurredAt.Before(*audit.LastEventAt) {
		at := ev.OccurredAt
		audit.LastEventAt = &at
		if ev.StatusCode != "" {
			audit.LastStatusCode = ev.StatusCode
		}
		if ev.Error != "" {
			audit.LastError = ev.Error
		}
	}
	st.touched[audit.SignerID] = true
	return ""
}

// next is the signature status after an event. Cancelled and Expired stick
// once set; otherwise the signers decide.
func (st *signerState) next(current, forced contractdomain.SignatureStatus) contractdomain.SignatureStatus {
	if forced != "" {
		return forced
	}
	if current == contractdomain.StatusCancelled || current == contractdomain.StatusExpired {
		return current
	}
	return contractdomain.Aggregate(st.list())
}

// latest keeps the most recent timestamp.
func latest(field **time.Time, at time.Time) {
	if *field == nil || (*field).Before(at) {
		t := at
		*field = &t
	}
}

func auditValues(a *contractdomain.ContractSignerAudit) map[string]any {
	return map[string]any{
		"last_viewed_at":   a.LastViewedAt,
		"last_reminded_at": a.LastRemindedAt,
		"signed_at":        a.SignedAt,
		"declined_at":      a.DeclinedAt,
		"errored_at":       a.ErroredAt,
		"last_status_code": a.LastStatusCode,
		"last_error":       a.LastError,
		"last_event_at":    a.LastEventAt,
	}
}
