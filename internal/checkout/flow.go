package checkout

import (
	"sync"

	"github.com/embermillco/embermill/internal/shipping"
)

// State is the checkout session's position in the reconciliation lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateComputing  State = "computing"
	StateSynced     State = "synced"
	StateConfirming State = "confirming"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// syncParams is the parameter set pushed to the remote payment intent. Two
// reconciliations with equal syncParams are interchangeable, which is what
// makes the idempotent no-op guard sound.
type syncParams struct {
	SubtotalCents int64
	ShippingCents int64
	Email         string
}

// Flow tracks one checkout session's reconciliation state machine. All
// fields are guarded by mu; the remote calls themselves happen outside the
// lock.
type Flow struct {
	mu sync.Mutex

	sessionID string
	cartID    string

	intentID     string
	clientSecret string

	state  State
	params syncParams  // latest requested parameter set
	synced *syncParams // last successfully synced parameter set

	// seq is the token of the most recently dispatched remote update. A
	// completion holding an older token is stale and must not overwrite
	// newer synced state.
	seq uint64

	destination    string
	methodID       string
	methodName     string
	methodCarrier  string
	methodFallback bool

	debouncer *Debouncer
}

// Status is the externally visible snapshot of a flow.
type Status struct {
	State          State  `json:"state"`
	IntentID       string `json:"intent_id"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	ShippingCents  int64  `json:"shipping_cents"`
	TotalCents     int64  `json:"total_cents"`
	ShippingMethod string `json:"shipping_method"`
	Fallback       bool   `json:"fallback"`
}

func (f *Flow) status() Status {
	return Status{
		State:          f.state,
		IntentID:       f.intentID,
		SubtotalCents:  f.params.SubtotalCents,
		ShippingCents:  f.params.ShippingCents,
		TotalCents:     f.params.SubtotalCents + f.params.ShippingCents,
		ShippingMethod: f.methodName,
		Fallback:       f.methodFallback,
	}
}

func (f *Flow) setQuote(destination string, quote shipping.Quote, fallback bool) {
	f.destination = destination
	f.methodID = quote.ID
	f.methodName = quote.Name
	f.methodCarrier = quote.Carrier
	f.methodFallback = fallback
}
