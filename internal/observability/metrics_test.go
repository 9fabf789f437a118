package observability

import (
	"context"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestWithMeter_StoresMeterInContext(t *testing.T) {
	t.Parallel()

	base := context.Background()
	meter := sentry.NewMeter(base)

	ctx := WithMeter(base, meter)

	stored, ok := ctx.Value(meterContextKey{}).(sentry.Meter)
	if !ok || stored == nil {
		t.Fatalf("expected meter stored in context, got %v", ctx.Value(meterContextKey{}))
	}
	if got := MeterFromContext(ctx); got == nil {
		t.Fatal("expected meter from context, got nil")
	}
}

func TestWithMeter_NilArgumentsStillYieldMeter(t *testing.T) {
	t.Parallel()

	ctx := WithMeter(nil, nil)
	if _, ok := ctx.Value(meterContextKey{}).(sentry.Meter); !ok {
		t.Fatal("expected a default meter stored for nil arguments")
	}
}

func TestMeterFromContext_FallsBackWithoutInjection(t *testing.T) {
	t.Parallel()

	if got := MeterFromContext(context.Background()); got == nil {
		t.Fatal("expected fallback meter, got nil")
	}
	if got := MeterFromContext(nil); got == nil {
		t.Fatal("expected fallback meter for nil context, got nil")
	}
}
