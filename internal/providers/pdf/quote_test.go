package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateQuoteProducesPDF(t *testing.T) {
	out, err := New().GenerateQuote(context.Background(), QuoteDocument{
		TenantName:  "Acme Pricing",
		QuoteNumber: "Q-01HZX",
		QuoteName:   "Annual renewal",
		AccountName: "Globex",
		Status:      "Draft",
		IssuedAt:    "2026-01-02",
		Currency:    "USD",
		Sections: []QuoteSection{{
			Title: "Pro / Analytics",
			Rows: []Row{
				{Label: "Seats", Value: "10"},
				{Label: "Storage", Value: "2", Addon: true},
			},
		}},
		Discount:  "5",
		Total:     "950.00",
		DealTerms: []Term{{Name: "Payment", Value: "Net 30"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateQuoteHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().GenerateQuote(ctx, QuoteDocument{})
	assert.ErrorIs(t, err, context.Canceled)
}
