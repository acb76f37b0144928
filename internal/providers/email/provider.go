package email

import "context"

// Template names rendered from templates/<name>.html.
const (
	TemplateQuoteForwarded = "quote_forwarded"
	TemplateQuoteEscalated = "quote_escalated"
	TemplateQuoteDecision  = "quote_decision"
)

// QuoteNotification is the data every quote template renders.
type QuoteNotification struct {
	Subject     string
	QuoteNumber string
	QuoteName   string
	AccountName string
	Status      string
	Total       string
	Discount    string
	Comment     string
	RequestedBy string
	QuoteURL    string
}

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data QuoteNotification) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data QuoteNotification) error {
	return nil
}
