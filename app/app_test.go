package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/embermillco/embermill/internal/email"
)

type fakeEmailProvider struct {
	validateErr error
	validated   int
}

func (p *fakeEmailProvider) SendEmail(_ context.Context, _ *email.Email) error {
	return nil
}

func (p *fakeEmailProvider) ValidateAPIKey(_ context.Context) error {
	p.validated++
	return p.validateErr
}

func TestValidateEmailProvider(t *testing.T) {
	t.Parallel()

	t.Run("nil provider means email disabled", func(t *testing.T) {
		t.Parallel()
		if err := validateEmailProvider(context.Background(), nil); err != nil {
			t.Fatalf("expected nil provider to pass, got %v", err)
		}
	})

	t.Run("valid key passes", func(t *testing.T) {
		t.Parallel()
		provider := &fakeEmailProvider{}
		if err := validateEmailProvider(context.Background(), provider); err != nil {
			t.Fatalf("expected validation to pass, got %v", err)
		}
		if provider.validated != 1 {
			t.Fatalf("expected one validation call, got %d", provider.validated)
		}
	})

	t.Run("bad key fails startup", func(t *testing.T) {
		t.Parallel()
		provider := &fakeEmailProvider{validateErr: fmt.Errorf("invalid api key")}
		err := validateEmailProvider(context.Background(), provider)
		if err == nil {
			t.Fatal("expected validation error")
		}
	})
}
