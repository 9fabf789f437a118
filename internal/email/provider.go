// Package email renders and delivers transactional order emails.
package email

import (
	"context"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	APIKey string
	From   string
}

// NewProvider returns the configured delivery backend, or nil when no API
// key is set. Callers treat a nil provider as email disabled.
func NewProvider(config Config) Provider {
	if config.APIKey == "" {
		return nil
	}
	return NewResendProvider(config.APIKey, config.From)
}
