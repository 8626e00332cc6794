package mailvendor

import (
	"errors"
	"strings"
	"time"

	"github.com/postcard/backend/internal/infrastructure/config"
)

// Defaults for the vendor client
const (
	DefaultBaseURL         = "https://api.lob.com/v1"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxResponseSize = 1 << 20
	DefaultUseType         = "marketing"
)

// Configuration errors
var (
	ErrConfigMissingAPIKey  = errors.New("mailvendor: api key is required")
	ErrConfigInvalidBaseURL = errors.New("mailvendor: base url must start with http:// or https://")
	ErrConfigInvalidUseType = errors.New("mailvendor: use type must be marketing or operational")
)

// Config holds the vendor API settings
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxResponseSize int64
	// UseType is required by the vendor for US mail: marketing or operational
	UseType string
}

// ConfigFromSettings converts the application's vendor section
func ConfigFromSettings(c config.VendorConfig) *Config {
	return &Config{
		BaseURL:         c.BaseURL,
		APIKey:          c.APIKey,
		Timeout:         c.Timeout,
		MaxResponseSize: c.MaxResponseSize,
		UseType:         c.UseType,
	}
}

// Validate validates the configuration and fills defaults
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "https://") && !strings.HasPrefix(c.BaseURL, "http://") {
		return ErrConfigInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
	if c.UseType == "" {
		c.UseType = DefaultUseType
	}
	if c.UseType != "marketing" && c.UseType != "operational" {
		return ErrConfigInvalidUseType
	}
	return nil
}

// IsTestKey reports whether the key targets the vendor's test environment
func (c *Config) IsTestKey() bool {
	return strings.HasPrefix(c.APIKey, "test_")
}
