package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
)

// Campaign errors
var (
	ErrNotEditable       = shared.NewDomainError("NOT_EDITABLE", "Campaign can only be modified while in draft")
	ErrNotSendable       = shared.NewDomainError("NOT_SENDABLE", "Campaign cannot be sent")
	ErrInvalidTransition = shared.NewDomainError("INVALID_TRANSITION", "Campaign status transition is not allowed")
	ErrAlreadyCharged    = shared.NewDomainError("ALREADY_CHARGED", "Campaign has already been charged")
	ErrRollupInvariant   = shared.NewDomainError("ROLLUP_INVARIANT", "sent_count + failed_count cannot exceed recipient_count")
)

// Artwork references the printable content for one side of a postcard
type Artwork struct {
	Kind       ArtworkKind `json:"kind"`
	URL        string      `json:"url,omitempty"`
	HTML       string      `json:"html,omitempty"`
	StorageKey string      `json:"storage_key,omitempty"`
}

// IsEmpty returns true if no artwork is attached
func (a Artwork) IsEmpty() bool {
	return a.Kind == ""
}

// Validate checks the artwork reference matches its kind
func (a Artwork) Validate() error {
	switch a.Kind {
	case ArtworkKindPDFURL:
		if !strings.HasPrefix(a.URL, "https://") && !strings.HasPrefix(a.URL, "http://") {
			return shared.NewDomainError("INVALID_ARTWORK", "PDF artwork requires an http(s) URL")
		}
	case ArtworkKindHTML:
		if strings.TrimSpace(a.HTML) == "" {
			return shared.NewDomainError("INVALID_ARTWORK", "HTML artwork cannot be empty")
		}
	case ArtworkKindUploaded:
		if a.StorageKey == "" {
			return shared.NewDomainError("INVALID_ARTWORK", "Uploaded artwork requires a storage key")
		}
	default:
		return shared.NewDomainError("INVALID_ARTWORK", "Unknown artwork kind: "+string(a.Kind))
	}
	return nil
}

// Rollup is the set of cached counters recomputed from the recipient registry
type Rollup struct {
	RecipientCount int
	SentCount      int
	FailedCount    int
	DeliveredCount int
	ActualCost     int64
}

// Validate checks the rollup counters are consistent
func (r Rollup) Validate() error {
	if r.RecipientCount < 0 || r.SentCount < 0 || r.FailedCount < 0 || r.DeliveredCount < 0 {
		return ErrRollupInvariant
	}
	if r.SentCount+r.FailedCount > r.RecipientCount {
		return ErrRollupInvariant
	}
	return nil
}

// Campaign is the aggregate root for a postcard send: its content, lifecycle,
// counters and cost totals.
type Campaign struct {
	shared.TenantAggregateRoot
	Name        string
	Description string
	Status      CampaignStatus
	MailClass   MailClass
	MailSize    MailSize
	Front       Artwork
	Back        Artwork
	FromName    string
	FromAddress valueobject.PostalAddress

	RecipientCount int
	SentCount      int
	FailedCount    int
	DeliveredCount int
	EstimatedCost  int64
	ActualCost     int64

	SuppressionOverride bool
	RecentOrderDays     *int // nil means tenant default
	RecentMailDays      *int // nil means tenant default

	ScheduledAt   *time.Time
	SentAt        *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	ChargedAt     *time.Time
	FailureReason string
}

// NewCampaign creates a new draft campaign
func NewCampaign(tenantID uuid.UUID, name string, mailClass MailClass, mailSize MailSize) (*Campaign, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Campaign name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_NAME", "Campaign name cannot exceed 200 characters")
	}
	if mailClass == "" {
		mailClass = MailClassFirstClass
	}
	if !mailClass.IsValid() {
		return nil, shared.NewDomainError("INVALID_MAIL_CLASS", "Invalid mail class: "+string(mailClass))
	}
	if mailSize == "" {
		mailSize = DefaultMailSize
	}
	if !mailSize.IsValid() {
		return nil, shared.NewDomainError("INVALID_MAIL_SIZE", "Invalid mail size: "+string(mailSize))
	}

	c := &Campaign{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		Status:              CampaignStatusDraft,
		MailClass:           mailClass,
		MailSize:            mailSize,
	}
	c.AddDomainEvent(NewCampaignCreatedEvent(c))
	return c, nil
}

// IsEditable returns true if recipients, content and cost may still change
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusDraft
}

// EnsureEditable returns ErrNotEditable unless the campaign is a draft
func (c *Campaign) EnsureEditable() error {
	if !c.IsEditable() {
		return shared.NewDomainError(ErrNotEditable.Code,
			"Campaign cannot be modified in status: "+c.Status.String())
	}
	return nil
}

// UpdateDetails changes the name and description
func (c *Campaign) UpdateDetails(name, description string) error {
	if err := c.EnsureEditable(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Campaign name cannot be empty")
	}
	c.Name = name
	c.Description = strings.TrimSpace(description)
	c.touch()
	return nil
}

// SetArtwork attaches front and back artwork. Either side may be left empty
// while drafting; both are required to send.
func (c *Campaign) SetArtwork(front, back Artwork) error {
	if err := c.EnsureEditable(); err != nil {
		return err
	}
	for _, a := range []Artwork{front, back} {
		if a.IsEmpty() {
			continue
		}
		if err := a.Validate(); err != nil {
			return err
		}
	}
	c.Front = front
	c.Back = back
	c.touch()
	return nil
}

// SetReturnAddress sets the "from" name and address printed on each piece
func (c *Campaign) SetReturnAddress(name string, addr valueobject.PostalAddress) error {
	if err := c.EnsureEditable(); err != nil {
		return err
	}
	c.FromName = strings.TrimSpace(name)
	c.FromAddress = addr
	c.touch()
	return nil
}

// SetMailOptions changes mail class and size
func (c *Campaign) SetMailOptions(mailClass MailClass, mailSize MailSize) error {
	if err := c.EnsureEditable(); err != nil {
		return err
	}
	if !mailClass.IsValid() {
		return shared.NewDomainError("INVALID_MAIL_CLASS", "Invalid mail class: "+string(mailClass))
	}
	if !mailSize.IsValid() {
		return shared.NewDomainError("INVALID_MAIL_SIZE", "Invalid mail size: "+string(mailSize))
	}
	c.MailClass = mailClass
	c.MailSize = mailSize
	c.touch()
	return nil
}

// SetSuppressionPolicy sets the override flag and optional lookback windows.
// A nil window falls back to the tenant default; 0 disables the rule.
func (c *Campaign) SetSuppressionPolicy(override bool, recentOrderDays, recentMailDays *int) error {
	if err := c.EnsureEditable(); err != nil {
		return err
	}
	if recentOrderDays != nil && *recentOrderDays < 0 {
		return shared.NewDomainError("INVALID_INPUT", "recent_order_days cannot be negative")
	}
	if recentMailDays != nil && *recentMailDays < 0 {
		return shared.NewDomainError("INVALID_INPUT", "recent_mail_days cannot be negative")
	}
	c.SuppressionOverride = override
	c.RecentOrderDays = recentOrderDays
	c.RecentMailDays = recentMailDays
	c.touch()
	return nil
}

// HasArtwork returns true if both sides have artwork attached
func (c *Campaign) HasArtwork() bool {
	return !c.Front.IsEmpty() && !c.Back.IsEmpty()
}

// ArtworkFor returns the artwork for one side
func (c *Campaign) ArtworkFor(side Side) Artwork {
	if side == SideBack {
		return c.Back
	}
	return c.Front
}

// EstimateCost recomputes estimated_cost as recipient_count x unitCost
func (c *Campaign) EstimateCost(unitCost int64) error {
	if err := c.EnsureEditable(); err != nil {
		return err
	}
	if unitCost < 0 {
		return shared.NewDomainError("INVALID_INPUT", "Unit cost cannot be negative")
	}
	c.EstimatedCost = int64(c.RecipientCount) * unitCost
	c.touch()
	return nil
}

// ApplyRollup replaces the cached counters with freshly computed values
func (c *Campaign) ApplyRollup(r Rollup) error {
	if err := r.Validate(); err != nil {
		return err
	}
	c.RecipientCount = r.RecipientCount
	c.SentCount = r.SentCount
	c.FailedCount = r.FailedCount
	c.DeliveredCount = r.DeliveredCount
	c.ActualCost = r.ActualCost
	c.touch()
	return nil
}

// SendNow moves a draft campaign into processing. It is the only path into dispatch.
func (c *Campaign) SendNow(now time.Time) error {
	if c.Status != CampaignStatusDraft {
		return shared.NewDomainError(ErrNotSendable.Code,
			"Campaign must be in draft to send, current status: "+c.Status.String())
	}
	if c.RecipientCount <= 0 {
		return shared.NewDomainError(ErrNotSendable.Code, "Campaign has no recipients")
	}
	if !c.HasArtwork() {
		return shared.NewDomainError(ErrNotSendable.Code, "Campaign requires front and back artwork")
	}

	c.transition(CampaignStatusProcessing)
	c.SentAt = &now
	c.FailureReason = ""
	c.AddDomainEvent(NewCampaignSendRequestedEvent(c))
	return nil
}

// Schedule moves a draft campaign to scheduled for release at the given time
func (c *Campaign) Schedule(at, now time.Time) error {
	if !c.Status.CanTransitionTo(CampaignStatusScheduled) {
		return c.invalidTransition(CampaignStatusScheduled)
	}
	if !at.After(now) {
		return shared.NewDomainError("INVALID_SCHEDULE", "Scheduled time must be in the future")
	}
	c.transition(CampaignStatusScheduled)
	c.ScheduledAt = &at
	return nil
}

// Unschedule returns a scheduled campaign to draft
func (c *Campaign) Unschedule() error {
	if c.Status != CampaignStatusScheduled {
		return c.invalidTransition(CampaignStatusDraft)
	}
	c.transition(CampaignStatusDraft)
	c.ScheduledAt = nil
	return nil
}

// IsDue returns true if a scheduled campaign should be released
func (c *Campaign) IsDue(now time.Time) bool {
	return c.Status == CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
}

// Cancel is legal only from scheduled
func (c *Campaign) Cancel(now time.Time) error {
	if c.Status != CampaignStatusScheduled {
		return c.invalidTransition(CampaignStatusCancelled)
	}
	c.transition(CampaignStatusCancelled)
	c.CancelledAt = &now
	c.AddDomainEvent(NewCampaignCancelledEvent(c))
	return nil
}

// Finalize records the batch totals and sets the terminal status. It succeeds
// at most once per send because processing is left on success.
func (c *Campaign) Finalize(sentCount, failedCount int, totalCost int64, now time.Time) error {
	if c.Status != CampaignStatusProcessing {
		return shared.NewDomainError(ErrInvalidTransition.Code,
			"Campaign can only be finalized while processing, current status: "+c.Status.String())
	}
	if sentCount < 0 || failedCount < 0 || totalCost < 0 {
		return shared.NewDomainError("INVALID_INPUT", "Finalize totals cannot be negative")
	}
	if sentCount+failedCount > c.RecipientCount {
		return ErrRollupInvariant
	}

	c.SentCount = sentCount
	c.FailedCount = failedCount
	c.ActualCost = totalCost
	c.transition(TerminalStatusFor(sentCount, failedCount))
	c.CompletedAt = &now
	c.AddDomainEvent(NewCampaignFinalizedEvent(c))
	return nil
}

// MarkFailed aborts a processing campaign because of a setup-time error
func (c *Campaign) MarkFailed(reason string, now time.Time) error {
	if c.Status != CampaignStatusProcessing {
		return c.invalidTransition(CampaignStatusFailed)
	}
	c.transition(CampaignStatusFailed)
	c.FailureReason = reason
	c.CompletedAt = &now
	c.AddDomainEvent(NewCampaignFinalizedEvent(c))
	return nil
}

// IsCharged returns true once the ledger has been debited
func (c *Campaign) IsCharged() bool {
	return c.ChargedAt != nil
}

// MarkCharged records the ledger debit. It can only happen once.
func (c *Campaign) MarkCharged(now time.Time) error {
	if c.ChargedAt != nil {
		return ErrAlreadyCharged
	}
	if !c.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "Campaign must be finished before charging")
	}
	c.ChargedAt = &now
	c.touch()
	return nil
}

func (c *Campaign) transition(target CampaignStatus) {
	old := c.Status
	c.Status = target
	c.touch()
	c.AddDomainEvent(NewCampaignStatusChangedEvent(c, old, target))
}

func (c *Campaign) invalidTransition(target CampaignStatus) error {
	return shared.NewDomainError(ErrInvalidTransition.Code,
		fmt.Sprintf("Cannot transition campaign from %s to %s", c.Status, target))
}

func (c *Campaign) touch() {
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
}
