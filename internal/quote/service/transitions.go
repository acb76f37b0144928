package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/email"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// change describes one status transition. mutate may add column updates and
// runs with the quote row locked.
type change struct {
	action  quotedomain.Action
	kind    quotedomain.CommentKind
	comment string
	mutate  func(locked *quotedomain.Quote, values map[string]any) error
}

func (s *Service) Forward(ctx context.Context, id string, req quotedomain.TransitionRequest) (*quotedomain.QuoteResponse, error) {
	quote, err := s.apply(ctx, id, change{action: quotedomain.ActionForward, kind: quotedomain.CommentForward, comment: req.Comment})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, quote, email.TemplateQuoteForwarded, req.Comment)
	return toQuoteResponse(quote), nil
}

func (s *Service) Escalate(ctx context.Context, id string, req quotedomain.TransitionRequest) (*quotedomain.QuoteResponse, error) {
	quote, err := s.apply(ctx, id, change{action: quotedomain.ActionEscalate, kind: quotedomain.CommentEscalate, comment: req.Comment})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, quote, email.TemplateQuoteEscalated, req.Comment)
	return toQuoteResponse(quote), nil
}

// Approval approves or rejects an escalated quote. Approval writes the
// approved per-product discounts onto the breakdown and re-checks it
// against the price book before committing. A quote that needs approval,
// before or after the new discounts, can only be decided by a holder of
// one of its approver roles.
func (s *Service) Approval(ctx context.Context, id string, req quotedomain.ApprovalRequest) (*quotedomain.QuoteResponse, error) {
	switch req.Decision {
	case quotedomain.DecisionReject:
		return s.reject(ctx, id, req.Comment)
	case quotedomain.DecisionApprove:
	default:
		return nil, quotedomain.ErrInvalidDecision
	}

	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := loadRow(ctx, s.quotes, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	if _, err := quotedomain.Next(snapshot.Status, quotedomain.ActionApprove); err != nil {
		return nil, err
	}

	breakdown := snapshot.Breakdown.Data()
	overrides, err := discountOverrides(&breakdown, req.Discounts)
	if err != nil {
		return nil, err
	}
	breakdown.ApplyDiscounts(snapshot.DiscountPercent, overrides)
	verdict, err := s.check(ctx, snapshot.PriceBookID, &breakdown)
	if err != nil {
		return nil, err
	}

	requires := snapshot.RequiresApproval || verdict.RequiresApproval
	roles := mergeRoles(snapshot.ApproverRoles, verdict.ApproverRoles)
	if requires {
		if err := s.authorizeApprover(ctx, roles); err != nil {
			return nil, err
		}
	}

	quote, err := s.apply(ctx, id, change{
		action:  quotedomain.ActionApprove,
		kind:    quotedomain.CommentApprove,
		comment: req.Comment,
		mutate: func(locked *quotedomain.Quote, values map[string]any) error {
			if !locked.UpdatedAt.Equal(snapshot.UpdatedAt) {
				return quotedomain.ErrStaleQuote
			}
			values["breakdown"] = datatypes.NewJSONType(breakdown)
			values["subtotal"] = breakdown.Subtotal
			values["total"] = breakdown.Total
			values["requires_approval"] = requires
			values["approver_roles"] = pqRoles(roles)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, quote, email.TemplateQuoteDecision, req.Comment)
	return toQuoteResponse(quote), nil
}

// reject declines a quote. Declining an escalated quote that needs approval
// is an approver decision.
func (s *Service) reject(ctx context.Context, id, comment string) (*quotedomain.QuoteResponse, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := loadRow(ctx, s.quotes, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	if snapshot.Status == quotedomain.StatusEscalated && snapshot.RequiresApproval {
		if err := s.authorizeApprover(ctx, snapshot.ApproverRoles); err != nil {
			return nil, err
		}
	}

	quote, err := s.apply(ctx, id, change{
		action:  quotedomain.ActionReject,
		kind:    quotedomain.CommentReject,
		comment: comment,
		mutate: func(locked *quotedomain.Quote, values map[string]any) error {
			if !locked.UpdatedAt.Equal(snapshot.UpdatedAt) {
				return quotedomain.ErrStaleQuote
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, quote, email.TemplateQuoteDecision, comment)
	return toQuoteResponse(quote), nil
}

// authorizeApprover requires the caller to hold one of roles. Without
// configured roles only tenant admins may decide.
func (s *Service) authorizeApprover(ctx context.Context, roles []string) error {
	actorID, ok := tenantcontext.ActorIDFromContext(ctx)
	if !ok {
		return quotedomain.ErrNotApprover
	}
	if len(roles) == 0 {
		roles = []string{rbacdomain.AdminRole}
	}
	resolution, err := s.roles.Resolve(ctx, actorID)
	if err != nil {
		return err
	}
	for _, held := range resolution.Roles {
		for _, want := range roles {
			if strings.EqualFold(strings.TrimSpace(held), strings.TrimSpace(want)) {
				return nil
			}
		}
	}
	s.log.Info("approval refused",
		zap.String("actor_id", actorID.String()),
		zap.Strings("approver_roles", roles),
	)
	return quotedomain.ErrNotApprover
}

func mergeRoles(sets ...[]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, set := range sets {
		for _, role := range set {
			key := strings.ToLower(strings.TrimSpace(role))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, role)
		}
	}
	return out
}

func (s *Service) Cancel(ctx context.Context, id string, req quotedomain.TransitionRequest) (*quotedomain.QuoteResponse, error) {
	quote, err := s.apply(ctx, id, change{action: quotedomain.ActionCancel, kind: quotedomain.CommentCancel, comment: req.Comment})
	if err != nil {
		return nil, err
	}
	return toQuoteResponse(quote), nil
}

// Reopen returns a quote to Draft. Callers are expected to hold the
// quote_admin feature.
func (s *Service) Reopen(ctx context.Context, id string, req quotedomain.TransitionRequest) (*quotedomain.QuoteResponse, error) {
	quote, err := s.apply(ctx, id, change{action: quotedomain.ActionReopen, kind: quotedomain.CommentReopen, comment: req.Comment})
	if err != nil {
		return nil, err
	}
	return toQuoteResponse(quote), nil
}

func (s *Service) Resend(ctx context.Context, id string) error {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	quote, err := loadRow(ctx, s.quotes, tenantID, quoteID)
	if err != nil {
		return err
	}
	switch quote.Status {
	case quotedomain.StatusForwarded:
		s.notify(ctx, quote, email.TemplateQuoteForwarded, "")
	case quotedomain.StatusEscalated:
		s.notify(ctx, quote, email.TemplateQuoteEscalated, "")
	default:
		return quotedomain.ErrInvalidTransition
	}
	return nil
}

func (s *Service) Status(ctx context.Context, id string) (*quotedomain.StatusResponse, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	quote, err := loadRow(ctx, s.quotes, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	return &quotedomain.StatusResponse{
		ID:               quote.ID.String(),
		Number:           quote.Number,
		Status:           quote.Status,
		RequiresApproval: quote.RequiresApproval,
		UpdatedAt:        quote.UpdatedAt,
	}, nil
}

// apply runs one transition in a transaction holding the quote row lock.
func (s *Service) apply(ctx context.Context, id string, c change) (*quotedomain.Quote, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(c.comment)

	var (
		quote *quotedomain.Quote
		from  quotedomain.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lock(ctx, tx, tenantID, quoteID)
		if err != nil {
			return err
		}
		from = locked.Status
		next, err := quotedomain.Next(locked.Status, c.action)
		if err != nil {
			return err
		}
		values := map[string]any{"status": next}
		if c.mutate != nil {
			if err := c.mutate(locked, values); err != nil {
				return err
			}
		}
		quotes := s.quotes.WithTrx(tx)
		if err := quotes.Update(ctx, tenantID, quoteID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		if comment != "" {
			if _, err := s.addComment(ctx, tx, quoteID, c.kind, comment); err != nil {
				return err
			}
		}
		if quote, err = loadRow(ctx, quotes, tenantID, quoteID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "quote."+string(c.action), quoteID, map[string]any{
			"from": string(from),
			"to":   string(next),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordQuoteTransition(ctx, tenantID.String(), string(from), string(quote.Status))
	s.log.Info("quote transitioned",
		zap.String("quote_id", quoteID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(quote.Status)),
	)
	return quote, nil
}

func discountOverrides(breakdown *pricingdomain.Breakdown, discounts []quotedomain.ProductDiscount) (map[string]decimal.Decimal, error) {
	if len(discounts) == 0 {
		return nil, nil
	}
	known := map[string]struct{}{}
	for _, p := range breakdown.Products() {
		known[p.ProductID] = struct{}{}
	}
	overrides := make(map[string]decimal.Decimal, len(discounts))
	for _, d := range discounts {
		productID := strings.TrimSpace(d.ProductID)
		if _, ok := known[productID]; !ok {
			return nil, quotedomain.ErrInvalidProduct
		}
		if !validPercent(d.DiscountPercent) {
			return nil, quotedomain.ErrInvalidDiscount
		}
		overrides[productID] = d.DiscountPercent
	}
	return overrides, nil
}

func pqRoles(roles []string) pq.StringArray {
	if roles == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(roles)
}

func actorIDs(id *snowflake.ID) []snowflake.ID {
	if id == nil {
		return nil
	}
	return []snowflake.ID{*id}
}
