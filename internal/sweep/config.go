package sweep

import (
	"strings"
	"time"

	"github.com/smallbiznis/pricedesk/internal/config"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
)

// Config controls batch sizes and per-job limits of a sweep run.
type Config struct {
	SalesforceDirection sfdomain.Direction
	TenantBatchSize     int
	JobTimeout          time.Duration
	LeaseTTL            time.Duration
}

func DefaultConfig() Config {
	return Config{
		SalesforceDirection: sfdomain.DirectionBoth,
		TenantBatchSize:     100,
		JobTimeout:          5 * time.Minute,
		LeaseTTL:            10 * time.Minute,
	}
}

// ProvideConfig maps the application configuration onto the sweep.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		SalesforceDirection: sfdomain.Direction(strings.ToLower(strings.TrimSpace(cfg.Sweep.SalesforceDirection))),
		TenantBatchSize:     cfg.Sweep.TenantBatchSize,
		JobTimeout:          cfg.Sweep.JobTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if !c.SalesforceDirection.Valid() {
		c.SalesforceDirection = defaults.SalesforceDirection
	}
	if c.TenantBatchSize <= 0 {
		c.TenantBatchSize = defaults.TenantBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}
