// Package cost holds the postage rate table and the pure cost computations
// for campaigns. It never touches billing state.
package cost

import (
	"fmt"
	"strings"

	"github.com/postcard/backend/internal/domain/campaign"
)

// RateTable maps mail class and size to a unit cost in cents
type RateTable map[campaign.MailClass]map[campaign.MailSize]int64

// DefaultRates is the postage table used unless configuration overrides it
func DefaultRates() RateTable {
	return RateTable{
		campaign.MailClassFirstClass: {
			campaign.MailSize4x6:  69,
			campaign.MailSize6x9:  87,
			campaign.MailSize6x11: 105,
		},
		campaign.MailClassStandard: {
			campaign.MailSize4x6:  51,
			campaign.MailSize6x9:  62,
			campaign.MailSize6x11: 74,
		},
	}
}

// Estimator computes postage costs from a rate table
type Estimator struct {
	rates RateTable
}

// NewEstimator creates an estimator. Overrides replace individual rates in the
// default table; keys are "<class>/<size>", e.g. "first_class/6x9".
func NewEstimator(overrides map[string]int64) (*Estimator, error) {
	rates := DefaultRates()
	for key, cents := range overrides {
		class, size, err := parseRateKey(key)
		if err != nil {
			return nil, err
		}
		if cents < 0 {
			return nil, fmt.Errorf("rate %s cannot be negative", key)
		}
		rates[class][size] = cents
	}
	return &Estimator{rates: rates}, nil
}

// UnitCost returns the cost of one postcard
func (e *Estimator) UnitCost(class campaign.MailClass, size campaign.MailSize) (int64, error) {
	bySize, ok := e.rates[class]
	if !ok {
		return 0, fmt.Errorf("no rates for mail class %q", class)
	}
	cents, ok := bySize[size]
	if !ok {
		return 0, fmt.Errorf("no rate for mail class %q size %q", class, size)
	}
	return cents, nil
}

// Estimate returns recipientCount x unit cost
func (e *Estimator) Estimate(class campaign.MailClass, size campaign.MailSize, recipientCount int) (int64, error) {
	unit, err := e.UnitCost(class, size)
	if err != nil {
		return 0, err
	}
	return int64(recipientCount) * unit, nil
}

// ActualCost sums the cost of billable recipients; failed recipients contribute zero
func ActualCost(totals []campaign.StatusTotal) int64 {
	var sum int64
	for _, t := range totals {
		if t.Status.IsBillable() {
			sum += t.Cost
		}
	}
	return sum
}

// Summarize turns per-status totals into campaign rollup counters.
// sent_count covers every submitted status, so delivered and returned pieces
// still count as sent.
func Summarize(totals []campaign.StatusTotal) campaign.Rollup {
	var r campaign.Rollup
	for _, t := range totals {
		r.RecipientCount += t.Count
		switch {
		case t.Status.IsSubmitted():
			r.SentCount += t.Count
			if t.Status == campaign.RecipientStatusDelivered {
				r.DeliveredCount += t.Count
			}
		case t.Status == campaign.RecipientStatusFailed:
			r.FailedCount += t.Count
		}
	}
	r.ActualCost = ActualCost(totals)
	return r
}

func parseRateKey(key string) (campaign.MailClass, campaign.MailSize, error) {
	c, sz, ok := strings.Cut(key, "/")
	class, size := campaign.MailClass(c), campaign.MailSize(sz)
	if !ok || !class.IsValid() || !size.IsValid() {
		return "", "", fmt.Errorf("invalid rate key %q, expected <class>/<size>", key)
	}
	return class, size, nil
}
