package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var defaultSubjects = map[string]string{
	TemplateQuoteForwarded: "Quote %s forwarded to deal desk",
	TemplateQuoteEscalated: "Quote %s needs your approval",
	TemplateQuoteDecision:  "Quote %s was %s",
}

// Render executes the named template and resolves the subject line.
func Render(templateName string, data QuoteNotification) (string, string, error) {
	tmpl := templates.Lookup(templateName + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown email template %q", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", templateName, err)
	}

	subject := data.Subject
	if subject == "" {
		switch templateName {
		case TemplateQuoteDecision:
			subject = fmt.Sprintf(defaultSubjects[templateName], data.QuoteNumber, data.Status)
		default:
			subject = fmt.Sprintf(defaultSubjects[templateName], data.QuoteNumber)
		}
	}
	return subject, body.String(), nil
}
