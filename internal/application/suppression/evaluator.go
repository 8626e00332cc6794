package suppression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/postcard/backend/internal/domain/suppression"
	"github.com/postcard/backend/internal/infrastructure/config"
)

// Evaluator resolves the effective policy for a campaign and loads the data
// the suppression rules need for each recipient
type Evaluator struct {
	settings suppression.SettingsRepository
	profiles suppression.ProfileRepository
	entries  suppression.DoNotMailRepository
	defaults config.SuppressionConfig
	now      func() time.Time
}

// NewEvaluator creates an Evaluator
func NewEvaluator(
	settings suppression.SettingsRepository,
	profiles suppression.ProfileRepository,
	entries suppression.DoNotMailRepository,
	defaults config.SuppressionConfig,
) *Evaluator {
	return &Evaluator{
		settings: settings,
		profiles: profiles,
		entries:  entries,
		defaults: defaults,
		now:      time.Now,
	}
}

// WithClock returns a copy of the evaluator that reads time from now
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	cp := *e
	cp.now = now
	return &cp
}

// PolicyFor combines tenant settings with the campaign's own lookback windows
func (e *Evaluator) PolicyFor(ctx context.Context, c *campaign.Campaign) (suppression.Policy, error) {
	settings, _, err := loadSettings(ctx, e.settings, e.defaults, c.TenantID)
	if err != nil {
		return suppression.Policy{}, fmt.Errorf("failed to load suppression settings: %w", err)
	}
	return suppression.ResolvePolicy(*settings, c.RecentOrderDays, c.RecentMailDays), nil
}

// Evaluate decides whether one recipient is suppressed under policy. A
// profile id that no longer resolves is treated as no history.
func (e *Evaluator) Evaluate(ctx context.Context, policy suppression.Policy, r *campaign.Recipient) (suppression.Decision, error) {
	subject := suppression.Subject{Email: r.Email, Address: r.Address}

	if r.ProfileID != nil && (policy.RecentOrderDays > 0 || policy.RecentMailDays > 0) {
		profile, err := e.profiles.FindByIDForTenant(ctx, r.TenantID, *r.ProfileID)
		switch {
		case err == nil:
			subject.Profile = profile
		case !errors.Is(err, shared.ErrNotFound):
			return suppression.Decision{}, fmt.Errorf("failed to load customer profile: %w", err)
		}
	}

	var index suppression.DoNotMailIndex
	if policy.DoNotMailEnabled {
		idx, err := e.indexFor(ctx, r.TenantID, r.Email, r.Address)
		if err != nil {
			return suppression.Decision{}, err
		}
		index = idx
	}

	return suppression.Evaluate(subject, policy, index, e.now()), nil
}

// Apply evaluates a recipient and stores the outcome on it
func (e *Evaluator) Apply(ctx context.Context, policy suppression.Policy, r *campaign.Recipient) error {
	d, err := e.Evaluate(ctx, policy, r)
	if err != nil {
		return err
	}
	r.ApplySuppression(d.Suppressed, d.Reason)
	return nil
}

func (e *Evaluator) indexFor(ctx context.Context, tenantID uuid.UUID, email string, addr valueobject.PostalAddress) (*suppression.EntryIndex, error) {
	matches, err := e.entries.FindMatching(ctx, tenantID, valueobject.NormalizeEmail(email), addr.NormalizedKey())
	if err != nil {
		return nil, fmt.Errorf("failed to look up do-not-mail entries: %w", err)
	}
	return suppression.NewEntryIndex(matches), nil
}
