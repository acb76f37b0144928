package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/providers"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"invalid input", productdomain.ErrInvalidCode, http.StatusBadRequest, "validation_error"},
		{"wrapped invalid input", fmt.Errorf("create: %w", contractdomain.ErrInvalidDates), http.StatusBadRequest, "validation_error"},
		{"formula reference", pricingdomain.ErrFormulaReference, http.StatusBadRequest, "validation_error"},
		{"rbac denial", rbacdomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not an approver", quotedomain.ErrNotApprover, http.StatusForbidden, "forbidden"},
		{"duplicate code", productdomain.ErrCodeTaken, http.StatusConflict, "conflict"},
		{"illegal transition", quotedomain.ErrInvalidTransition, http.StatusConflict, "conflict"},
		{"missing tier", pricingdomain.ErrTierNotFound, http.StatusNotFound, "not_found"},
		{"gorm miss", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"external", providers.External("esign", "send", errors.New("timeout")), http.StatusBadGateway, "external_error"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	_, payload := mapError(contractdomain.ErrInvalidDates)

	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "invalid_contract_dates", payload.Errors[0].Code)
		assert.Equal(t, "contract_dates", payload.Errors[0].Field)
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(pricingdomain.ErrFormulaSyntax)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "formula_syntax", code)

	typ, code = classifyErrorForLog(quotedomain.ErrStaleQuote)
	assert.Equal(t, "conflict", typ)
	assert.Equal(t, "quote_changed_concurrently", code)
}
