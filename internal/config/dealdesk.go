package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DealDeskConfig holds the operational settings that sales ops change
// without a redeploy.
type DealDeskConfig struct {
	// Recipients of the "quote forwarded to deal desk" notification.
	DistributionList []string `mapstructure:"distributionList"`
	// Used when a signature request is created without an explicit expiry.
	SignatureExpiryDays int `mapstructure:"signatureExpiryDays"`
	// Prefix of human quote references, e.g. "Q" gives Q-01J...
	QuotePrefix string `mapstructure:"quotePrefix"`
	// Base URL of the web app, used for links in notification emails.
	AppURL string `mapstructure:"appURL"`
}

func DefaultDealDeskConfig() DealDeskConfig {
	return DealDeskConfig{
		DistributionList:    []string{"dealdesk@pricedesk.local"},
		SignatureExpiryDays: 30,
		QuotePrefix:         "Q",
		AppURL:              "http://localhost:3000",
	}
}

type DealDeskConfigHolder struct {
	current atomic.Value // holds DealDeskConfig
}

// NewStaticDealDeskConfigHolder returns a holder that never reloads.
func NewStaticDealDeskConfigHolder(cfg DealDeskConfig) *DealDeskConfigHolder {
	holder := &DealDeskConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDealDeskConfigHolder(log *zap.Logger) (*DealDeskConfigHolder, error) {
	log = log.Named("config.dealdesk")
	v := viper.New()

	v.SetConfigName("dealdesk")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/pricedesk/config")
	v.AddConfigPath("/etc/pricedesk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRICEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDealDeskConfig()
	v.SetDefault("dealdesk.distributionList", defaults.DistributionList)
	v.SetDefault("dealdesk.signatureExpiryDays", defaults.SignatureExpiryDays)
	v.SetDefault("dealdesk.quotePrefix", defaults.QuotePrefix)
	v.SetDefault("dealdesk.appURL", defaults.AppURL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg DealDeskConfig
	if err := v.UnmarshalKey("dealdesk", &cfg); err != nil {
		return nil, err
	}
	if err := validateDealDeskConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticDealDeskConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DealDeskConfig
		if err := v.UnmarshalKey("dealdesk", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateDealDeskConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DealDeskConfigHolder) Get() DealDeskConfig {
	return h.current.Load().(DealDeskConfig)
}

func validateDealDeskConfig(cfg DealDeskConfig) error {
	if len(cfg.DistributionList) == 0 {
		return errors.New("dealdesk.distributionList cannot be empty")
	}
	if cfg.SignatureExpiryDays <= 0 {
		return errors.New("dealdesk.signatureExpiryDays must be positive")
	}
	if strings.TrimSpace(cfg.QuotePrefix) == "" {
		return errors.New("dealdesk.quotePrefix cannot be empty")
	}
	return nil
}
