package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderForwardedTemplate(t *testing.T) {
	subject, body, err := Render(TemplateQuoteForwarded, QuoteNotification{
		QuoteNumber: "Q-01",
		QuoteName:   "Renewal",
		AccountName: "Acme",
		Total:       "1200.00",
		Discount:    "10",
	})
	require.NoError(t, err)
	assert.Equal(t, "Quote Q-01 forwarded to deal desk", subject)
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "1200.00")
}

func TestRenderDecisionSubject(t *testing.T) {
	subject, _, err := Render(TemplateQuoteDecision, QuoteNotification{QuoteNumber: "Q-02", Status: "Approved"})
	require.NoError(t, err)
	assert.Equal(t, "Quote Q-02 was Approved", subject)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("missing", QuoteNotification{})
	assert.Error(t, err)
}

func TestSMTPSendTemplate(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25, From: "no-reply@pricedesk.local"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"desk@acme.test"}, TemplateQuoteEscalated, QuoteNotification{QuoteNumber: "Q-03"})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:25", gotAddr)
	assert.Equal(t, []string{"desk@acme.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Quote Q-03 needs your approval")
}
