package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// minSweepAge keeps the sweep from racing checkout sessions that are still
// live; matches the one-day-floor rule the manual clear always had.
const minSweepAge = time.Hour

// SweepReport summarizes one housekeeping pass.
type SweepReport struct {
	Cleared    int             `json:"cleared_count"`
	Amount     decimal.Decimal `json:"cleared_amount"`
	References []string        `json:"cleared_references"`
}

// SweepStalePending marks pending transactions older than olderThan as
// failed: abandoned deposit intents the gateway will never settle. Each row
// goes through the same finalize guard as a webhook, so a late delivery
// racing the sweep resolves to exactly one winner; rows the sweep loses are
// simply skipped.
func (s *LedgerService) SweepStalePending(ctx context.Context, olderThan time.Duration) (*SweepReport, error) {
	if olderThan < minSweepAge {
		olderThan = minSweepAge
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	stale, err := s.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Amount: decimal.Zero, References: []string{}}
	for _, t := range stale {
		res, err := s.Finalize(ctx, FinalizeInput{
			Reference:      t.Reference,
			Outcome:        OutcomeFailed,
			ObservedAmount: t.Amount,
			FailureReason:  fmt.Sprintf("abandoned: pending since %s", t.CreatedAt.UTC().Format(time.RFC3339)),
		})
		if err != nil {
			if errors.Is(err, ErrUnknownReference) {
				continue
			}
			return report, err
		}
		if !res.Applied {
			// a webhook finalized it between the listing and now
			continue
		}
		report.Cleared++
		report.Amount = report.Amount.Add(t.Amount)
		report.References = append(report.References, t.Reference)
	}
	if report.Cleared > 0 {
		s.log.Infow("stale pending sweep", "cleared", report.Cleared, "amount", report.Amount)
	}
	return report, nil
}
