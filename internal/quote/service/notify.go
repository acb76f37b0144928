package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/providers/email"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// notify sends a quote email after the transition committed. Failures are
// logged and counted, never returned.
func (s *Service) notify(ctx context.Context, quote *quotedomain.Quote, template, comment string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	log := s.log.With(zap.String("quote_id", quote.ID.String()), zap.String("template", template))
	recipients := s.recipients(ctx, quote, template)
	if len(recipients) == 0 {
		log.Warn("no recipients for quote notification")
		return
	}

	data := email.QuoteNotification{
		QuoteNumber: quote.Number,
		QuoteName:   quote.Name,
		AccountName: s.accountName(ctx, quote),
		Status:      string(quote.Status),
		Total:       fmt.Sprintf("%s %s", quote.Currency, quote.Total.StringFixed(2)),
		Discount:    quote.DiscountPercent.String(),
		Comment:     strings.TrimSpace(comment),
		RequestedBy: s.actorEmail(ctx),
		QuoteURL:    s.quoteURL(quote.ID),
	}
	if err := s.email.SendTemplate(ctx, recipients, template, data); err != nil {
		s.metrics.RecordNotificationFailure(ctx, template)
		log.Error("send quote notification", zap.Error(err))
		return
	}
	log.Info("quote notification sent", zap.Int("recipients", len(recipients)))
}

// recipients resolves who hears about a quote. Escalations go to the users
// holding the approver roles and decisions to the quote's creator; both
// fall back to the deal-desk list.
func (s *Service) recipients(ctx context.Context, quote *quotedomain.Quote, template string) []string {
	var ids []snowflake.ID
	switch template {
	case email.TemplateQuoteEscalated:
		if len(quote.ApproverRoles) > 0 {
			found, err := s.roles.UsersWithRoles(ctx, quote.ApproverRoles)
			if err != nil {
				s.log.Warn("resolve approvers", zap.Error(err))
			}
			ids = found
		}
	case email.TemplateQuoteDecision:
		ids = actorIDs(quote.CreatedBy)
	}

	if len(ids) > 0 {
		emails, err := s.users.Emails(ctx, ids)
		if err != nil {
			s.log.Warn("resolve recipient emails", zap.Error(err))
		}
		if len(emails) > 0 {
			return emails
		}
	}
	if s.dealDesk == nil {
		return nil
	}
	return s.dealDesk.Get().DistributionList
}

func (s *Service) accountName(ctx context.Context, quote *quotedomain.Quote) string {
	opp, err := s.opportunities.FindByID(ctx, quote.TenantID, quote.OpportunityID)
	if err != nil || opp == nil {
		return ""
	}
	account, err := s.accounts.FindByID(ctx, quote.TenantID, opp.AccountID)
	if err != nil || account == nil {
		return ""
	}
	return account.Name
}

func (s *Service) actorEmail(ctx context.Context) string {
	actorID, ok := tenantcontext.ActorIDFromContext(ctx)
	if !ok {
		return ""
	}
	emails, err := s.users.Emails(ctx, []snowflake.ID{actorID})
	if err != nil || len(emails) == 0 {
		return ""
	}
	return emails[0]
}

func (s *Service) quoteURL(id snowflake.ID) string {
	if s.dealDesk == nil {
		return ""
	}
	base := strings.TrimRight(s.dealDesk.Get().AppURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/quotes/%s", base, id.String())
}
