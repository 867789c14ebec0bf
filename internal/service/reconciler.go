package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature means the notification failed HMAC verification;
	// it is rejected before any parsing or lookup.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent means the payload parsed but lacks required fields.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// ReconcileOutcome classifies what a delivery did.
type ReconcileOutcome string

const (
	// ReconcileApplied: this delivery performed the one-and-only transition.
	ReconcileApplied ReconcileOutcome = "applied"
	// ReconcileDuplicate: the transaction was already terminal; the stored
	// result is acknowledged and nothing was touched.
	ReconcileDuplicate ReconcileOutcome = "duplicate"
	// ReconcileIgnored: event type we do not act on; acknowledged so the
	// provider stops retrying.
	ReconcileIgnored ReconcileOutcome = "ignored"
)

// ReconcileResult is returned for every accepted delivery.
type ReconcileResult struct {
	Outcome   ReconcileOutcome        `json:"outcome"`
	Reference string                  `json:"reference,omitempty"`
	Status    model.TransactionStatus `json:"status,omitempty"`
}

// Reconciler converts untrusted gateway notifications into exactly-once
// state transitions. Delivery is at-least-once and unordered; idempotence
// comes from the ledger's transition guard, not from anything here.
type Reconciler struct {
	ledger *LedgerService
	secret []byte
	scale  decimal.Decimal
	log    *zap.SugaredLogger
}

// NewReconciler builds a Reconciler. webhookSecret is the shared secret the
// gateway signs raw payloads with; minorUnitScale converts the gateway's
// minor units into ledger amounts.
func NewReconciler(ledger *LedgerService, webhookSecret string, minorUnitScale int64, logger *zap.SugaredLogger) *Reconciler {
	if minorUnitScale <= 0 {
		minorUnitScale = 100
	}
	return &Reconciler{
		ledger: ledger,
		secret: []byte(webhookSecret),
		scale:  decimal.NewFromInt(minorUnitScale),
		log:    logger,
	}
}

// VerifySignature recomputes the HMAC-SHA512 hex digest over the raw body
// and compares in constant time.
func (r *Reconciler) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, r.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

// Process verifies and applies one webhook delivery.
//
// The signature check comes first: a tampered payload is rejected with no
// lookup and no information beyond the rejection. Unknown references are
// rejected rather than created, so an injected event cannot mint a
// transaction to credit. Recognized terminal events are driven through
// Finalize, whose status CAS guarantees one balance mutation no matter how
// many concurrent duplicates arrive.
func (r *Reconciler) Process(ctx context.Context, body []byte, signature string) (*ReconcileResult, error) {
	if signature == "" || !r.VerifySignature(body, signature) {
		r.log.Warnw("webhook rejected", "reason", "invalid signature")
		return nil, ErrInvalidSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var outcome Outcome
	switch evt.Event {
	case "charge.success":
		if evt.Data.Status != "success" {
			// gateway sent a success event for a charge it does not itself
			// consider settled; keep the row pending and wait
			r.log.Infow("webhook ignored", "event", evt.Event, "provider_status", evt.Data.Status)
			return &ReconcileResult{Outcome: ReconcileIgnored, Reference: evt.Data.Reference}, nil
		}
		outcome = OutcomeSuccess
	case "charge.failed":
		outcome = OutcomeFailed
	default:
		r.log.Infow("webhook ignored", "event", evt.Event)
		return &ReconcileResult{Outcome: ReconcileIgnored}, nil
	}

	if evt.Data.Reference == "" || evt.Data.Amount <= 0 {
		return nil, fmt.Errorf("%w: missing reference or amount", ErrMalformedEvent)
	}
	amount := decimal.NewFromInt(evt.Data.Amount).Div(r.scale)

	in := FinalizeInput{
		Reference:      evt.Data.Reference,
		Outcome:        outcome,
		ObservedAmount: amount,
	}
	if evt.Data.ID != 0 {
		in.ProviderReference = strconv.FormatInt(evt.Data.ID, 10)
	}
	if outcome == OutcomeFailed {
		in.FailureReason = "gateway reported charge failed"
	}

	res, err := r.ledger.Finalize(ctx, in)
	if err != nil {
		return nil, err
	}

	out := &ReconcileResult{Reference: res.Reference, Status: res.Status, Outcome: ReconcileApplied}
	if !res.Applied {
		out.Outcome = ReconcileDuplicate
	}
	r.log.Infow("webhook reconciled",
		"reference", res.Reference, "outcome", out.Outcome, "status", res.Status)
	return out, nil
}
