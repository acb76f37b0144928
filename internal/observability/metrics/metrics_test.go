package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", "123"),
		attribute.String("quote_id", "456"),
		attribute.String("event_type", "signature_request_signed"),
	)
	require.Len(t, attrs, 2)

	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("tenant_id"))
	assert.Contains(t, keys, attribute.Key("event_type"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordQuoteTransition(context.Background(), "1", "Draft", "ForwardedToDealDesk")
	m.RecordNotificationFailure(context.Background(), "quote_forwarded")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "pricedesk"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordSalesforceSync(context.Background(), "1", "push", "success")
	m.RecordExternalCall(context.Background(), "esign", "create", "ok")
}
