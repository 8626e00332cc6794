// Package suppression decides which recipients are withheld from a send.
//
// Evaluate is a pure function: given the recipient, its linked customer
// profile, the effective policy and the tenant's do-not-mail index, it returns
// the same decision for the same inputs. Rules are checked in a fixed order and
// the first match supplies the reason.
package suppression

import (
	"fmt"
	"time"

	"github.com/postcard/backend/internal/domain/shared/valueobject"
)

// Rule identifies the suppression rule that matched
type Rule string

const (
	RuleNone        Rule = ""
	RuleRecentOrder Rule = "recent_order"
	RuleRecentMail  Rule = "recent_mail"
	RuleDoNotMail   Rule = "do_not_mail"
)

// Policy holds the effective thresholds. A days value of 0 disables that rule.
type Policy struct {
	RecentOrderDays  int
	RecentMailDays   int
	DoNotMailEnabled bool
}

// Subject is the recipient data the rules look at
type Subject struct {
	Email   string
	Address valueobject.PostalAddress
	Profile *CustomerProfile
}

// Decision is the outcome of an evaluation
type Decision struct {
	Suppressed bool
	Rule       Rule
	Reason     string
}

// DoNotMailIndex answers whether a normalized email or address key is listed
type DoNotMailIndex interface {
	HasEmail(normalizedEmail string) bool
	HasAddress(addressKey string) bool
}

// Evaluate applies the recent-order, recent-mail and do-not-mail rules in order
func Evaluate(s Subject, p Policy, dnm DoNotMailIndex, now time.Time) Decision {
	if p.RecentOrderDays > 0 && s.Profile != nil && s.Profile.LastOrderAt != nil {
		if within(*s.Profile.LastOrderAt, p.RecentOrderDays, now) {
			return Decision{
				Suppressed: true,
				Rule:       RuleRecentOrder,
				Reason:     fmt.Sprintf("Ordered within the last %d days", p.RecentOrderDays),
			}
		}
	}

	if p.RecentMailDays > 0 && s.Profile != nil && s.Profile.LastMailedAt != nil {
		if within(*s.Profile.LastMailedAt, p.RecentMailDays, now) {
			return Decision{
				Suppressed: true,
				Rule:       RuleRecentMail,
				Reason:     fmt.Sprintf("Mailed within the last %d days", p.RecentMailDays),
			}
		}
	}

	if p.DoNotMailEnabled && dnm != nil {
		if email := valueobject.NormalizeEmail(s.Email); email != "" && dnm.HasEmail(email) {
			return Decision{Suppressed: true, Rule: RuleDoNotMail, Reason: "Email is on the do-not-mail list"}
		}
		if key := s.Address.NormalizedKey(); key != "" && dnm.HasAddress(key) {
			return Decision{Suppressed: true, Rule: RuleDoNotMail, Reason: "Address is on the do-not-mail list"}
		}
	}

	return Decision{}
}

func within(at time.Time, days int, now time.Time) bool {
	return !at.Before(now.AddDate(0, 0, -days))
}

// EntryIndex is an in-memory DoNotMailIndex built from a set of entries
type EntryIndex struct {
	emails    map[string]struct{}
	addresses map[string]struct{}
}

// NewEntryIndex indexes the given entries
func NewEntryIndex(entries []DoNotMailEntry) *EntryIndex {
	idx := &EntryIndex{
		emails:    make(map[string]struct{}, len(entries)),
		addresses: make(map[string]struct{}, len(entries)),
	}
	for _, e := range entries {
		if e.Email != "" {
			idx.emails[e.Email] = struct{}{}
		}
		if e.AddressKey != "" {
			idx.addresses[e.AddressKey] = struct{}{}
		}
	}
	return idx
}

// HasEmail implements DoNotMailIndex
func (i *EntryIndex) HasEmail(email string) bool {
	_, ok := i.emails[email]
	return ok
}

// HasAddress implements DoNotMailIndex
func (i *EntryIndex) HasAddress(key string) bool {
	_, ok := i.addresses[key]
	return ok
}
