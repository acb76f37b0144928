package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatusReportsExpiry(t *testing.T) {
	expires := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	before := expires.Add(-time.Hour)
	after := expires.Add(time.Hour)

	assert.Equal(t, StatusInApproval, StatusInApproval.Effective(before, expires))
	assert.Equal(t, StatusExpired, StatusInApproval.Effective(after, expires))
	assert.Equal(t, StatusExpired, StatusError.Effective(after, expires))
	assert.Equal(t, StatusActivated, StatusActivated.Effective(after, expires))
	assert.Equal(t, StatusCancelled, StatusCancelled.Effective(after, expires))
}

func TestAggregate(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		audits []ContractSignerAudit
		want   SignatureStatus
	}{
		{"no signers", nil, StatusInApproval},
		{"pending", []ContractSignerAudit{{SignedAt: &at}, {}}, StatusInApproval},
		{"all signed", []ContractSignerAudit{{SignedAt: &at}, {SignedAt: &at}}, StatusActivated},
		{"declined wins", []ContractSignerAudit{{ErroredAt: &at}, {DeclinedAt: &at}}, StatusDeclined},
		{"error", []ContractSignerAudit{{SignedAt: &at}, {ErroredAt: &at}}, StatusError},
		{"error then signed", []ContractSignerAudit{{SignedAt: &at, ErroredAt: &at}}, StatusActivated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Aggregate(tc.audits))
		})
	}
}
