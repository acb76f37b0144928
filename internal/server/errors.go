package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	documentdomain "github.com/smallbiznis/pricedesk/internal/document/domain"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
	"github.com/smallbiznis/pricedesk/internal/providers/identity"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type       string                      `json:"type"`
	Message    string                      `json:"message"`
	Errors     []ValidationError           `json:"errors,omitempty"`
	Violations []pricebookdomain.Violation `json:"violations,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var ruleErr *quotedomain.RuleViolationError
	if errors.As(err, &ruleErr) {
		return http.StatusBadRequest, errorPayload{
			Type:       "rule_violation",
			Message:    "quote violates price book rules",
			Violations: ruleErr.Violations,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, rbacdomain.ErrForbidden),
		errors.Is(err, rbacdomain.ErrRoleProtected),
		errors.Is(err, quotedomain.ErrNotApprover),
		errors.Is(err, userdomain.ErrUserDisabled):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, providers.ErrExternal):
		return http.StatusBadGateway, errorPayload{
			Type:    "external_error",
			Message: "upstream service failed",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type == "conflict" {
		code = payload.Message
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationSentinels are domain errors that describe bad input. Most carry
// an invalid_ prefix; the rest are listed explicitly.
var validationSentinels = []error{
	ErrInvalidRequest,
	pricingdomain.ErrInvalidAddonUnits,
	pricingdomain.ErrDuplicateRowKey,
	pricingdomain.ErrEmptyStructure,
	pricingdomain.ErrFormulaSyntax,
	pricingdomain.ErrFormulaReference,
	pricingdomain.ErrFormulaEvaluation,
	quotedomain.ErrRuleViolation,
	contractdomain.ErrQuoteNotApproved,
	contractdomain.ErrNoSigners,
	sfdomain.ErrNotConfigured,
	sfdomain.ErrNoMappings,
}

func isValidationError(err error) bool {
	for _, target := range validationSentinels {
		if errors.Is(err, target) {
			return true
		}
	}
	for _, target := range invalidInputSentinels() {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func invalidInputSentinels() []error {
	return []error{
		tenantdomain.ErrInvalidTenant, tenantdomain.ErrInvalidName, tenantdomain.ErrInvalidSlug, tenantdomain.ErrInvalidFounder,
		userdomain.ErrInvalidTenant, userdomain.ErrInvalidID, userdomain.ErrInvalidEmail, userdomain.ErrInvalidStatus,
		userdomain.ErrInvalidRole, userdomain.ErrInvalidPageToken,
		rbacdomain.ErrInvalidTenant, rbacdomain.ErrInvalidID, rbacdomain.ErrInvalidUser, rbacdomain.ErrInvalidName,
		rbacdomain.ErrInvalidFeature, rbacdomain.ErrInvalidMethod,
		accountdomain.ErrInvalidTenant, accountdomain.ErrInvalidID, accountdomain.ErrInvalidName, accountdomain.ErrInvalidAccount,
		accountdomain.ErrInvalidStage, accountdomain.ErrInvalidAmount, accountdomain.ErrInvalidCurrency, accountdomain.ErrInvalidPageToken,
		productdomain.ErrInvalidTenant, productdomain.ErrInvalidCode, productdomain.ErrInvalidName, productdomain.ErrInvalidKey,
		productdomain.ErrInvalidProduct, productdomain.ErrInvalidGroup, productdomain.ErrInvalidPageToken, productdomain.ErrInvalidID,
		plandomain.ErrInvalidTenant, plandomain.ErrInvalidID, plandomain.ErrInvalidProduct, plandomain.ErrInvalidPlan,
		plandomain.ErrInvalidCode, plandomain.ErrInvalidName, plandomain.ErrInvalidPageToken,
		packagedomain.ErrInvalidTenant, packagedomain.ErrInvalidID, packagedomain.ErrInvalidPlan, packagedomain.ErrInvalidTier,
		packagedomain.ErrInvalidCode, packagedomain.ErrInvalidName, packagedomain.ErrInvalidPageToken,
		pricingdomain.ErrInvalidTenant, pricingdomain.ErrInvalidID, pricingdomain.ErrInvalidName, pricingdomain.ErrInvalidModel,
		pricingdomain.ErrInvalidStructure, pricingdomain.ErrInvalidProduct, pricingdomain.ErrInvalidPriceBook,
		pricingdomain.ErrInvalidAddon, pricingdomain.ErrInvalidRowKey, pricingdomain.ErrInvalidPageToken,
		pricebookdomain.ErrInvalidTenant, pricebookdomain.ErrInvalidID, pricebookdomain.ErrInvalidName,
		pricebookdomain.ErrInvalidCurrency, pricebookdomain.ErrInvalidPriceBook, pricebookdomain.ErrInvalidProduct,
		pricebookdomain.ErrInvalidTier, pricebookdomain.ErrInvalidPrice, pricebookdomain.ErrInvalidAction,
		pricebookdomain.ErrInvalidValue, pricebookdomain.ErrInvalidCondition, pricebookdomain.ErrInvalidPolicy,
		pricebookdomain.ErrInvalidPageToken,
		quotedomain.ErrInvalidTenant, quotedomain.ErrInvalidID, quotedomain.ErrInvalidName, quotedomain.ErrInvalidOpportunity,
		quotedomain.ErrInvalidDiscount, quotedomain.ErrInvalidDecision, quotedomain.ErrInvalidProduct,
		quotedomain.ErrInvalidStatus, quotedomain.ErrInvalidComment, quotedomain.ErrInvalidPageToken,
		contractdomain.ErrInvalidTenant, contractdomain.ErrInvalidID, contractdomain.ErrInvalidName, contractdomain.ErrInvalidQuote,
		contractdomain.ErrInvalidDates, contractdomain.ErrInvalidTitle, contractdomain.ErrInvalidSigner,
		contractdomain.ErrInvalidExpiry, contractdomain.ErrInvalidPageToken,
		sfdomain.ErrInvalidTenant, sfdomain.ErrInvalidID, sfdomain.ErrInvalidEntity, sfdomain.ErrInvalidLocalField,
		sfdomain.ErrInvalidRemoteField, sfdomain.ErrInvalidDirection, sfdomain.ErrInvalidCredentials, sfdomain.ErrInvalidPageToken,
		documentdomain.ErrInvalidTenant, documentdomain.ErrInvalidID,
		auditdomain.ErrInvalidTenant, auditdomain.ErrInvalidPageToken, auditdomain.ErrInvalidTimeRange, auditdomain.ErrInvalidAction,
		esign.ErrInvalidPayload,
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, userdomain.ErrUnknownSubject),
		errors.Is(err, esign.ErrInvalidSignature):
		return true
	default:
		return false
	}
}

var conflictSentinels = []error{
	ErrConflict,
	tenantdomain.ErrSlugTaken,
	tenantdomain.ErrAlreadyMember,
	userdomain.ErrUserExists,
	rbacdomain.ErrRoleExists,
	accountdomain.ErrAccountInUse,
	productdomain.ErrCodeTaken,
	productdomain.ErrKeyTaken,
	plandomain.ErrCodeTaken,
	packagedomain.ErrCodeTaken,
	pricingdomain.ErrModelInUse,
	pricebookdomain.ErrEntryExists,
	quotedomain.ErrNotEditable,
	quotedomain.ErrStaleQuote,
	quotedomain.ErrInvalidTransition,
	contractdomain.ErrSignatureExists,
	contractdomain.ErrSignatureClosed,
	contractdomain.ErrSignerCompleted,
	sfdomain.ErrMappingExists,
	sfdomain.ErrSyncInProgress,
}

func isConflictError(err error) bool {
	for _, target := range conflictSentinels {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func conflictMessage(err error) string {
	for _, target := range conflictSentinels {
		if target != ErrConflict && errors.Is(err, target) {
			return target.Error()
		}
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, rbacdomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, packagedomain.ErrNotFound),
		errors.Is(err, pricingdomain.ErrNotFound),
		errors.Is(err, pricingdomain.ErrTierNotFound),
		errors.Is(err, pricebookdomain.ErrNotFound),
		errors.Is(err, quotedomain.ErrNotFound),
		errors.Is(err, contractdomain.ErrNotFound),
		errors.Is(err, contractdomain.ErrSignatureNotFound),
		errors.Is(err, contractdomain.ErrSignerNotFound),
		errors.Is(err, sfdomain.ErrNotFound),
		errors.Is(err, documentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	for _, target := range validationSentinels {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	for _, target := range invalidInputSentinels() {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "formula_syntax", "formula_reference", "formula_evaluation":
		return "pricing formula could not be evaluated"
	case "quote_not_approved":
		return "quote must be approved first"
	case "salesforce_not_configured":
		return "salesforce credentials are not configured"
	default:
		return "invalid value"
	}
}
