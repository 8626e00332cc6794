package campaign

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
)

// Recipient errors
var (
	ErrRecipientInvalidTransition = shared.NewDomainError("INVALID_TRANSITION", "Recipient status transition is not allowed")
	// ErrDuplicateVendorObject shares the data-integrity code so errors.Is matches shared.ErrDataIntegrity.
	ErrDuplicateVendorObject = shared.NewDomainError("DATA_INTEGRITY", "Vendor object id is already assigned to another recipient")
	ErrVendorObjectConflict  = shared.NewDomainError("DATA_INTEGRITY", "Recipient already holds a different vendor object id")
)

// MaxSnapshotBytes caps the redacted vendor response stored on a recipient
const MaxSnapshotBytes = 2048

// DispatchInterruptedMessage is stored on recipients left in sending by a crashed dispatch
const DispatchInterruptedMessage = "Dispatch was interrupted before the vendor confirmed this postcard. Reset the recipient to retry."

// RecipientInput is the validated data used to create a recipient
type RecipientInput struct {
	Name        string
	Address     valueobject.PostalAddress
	Email       string
	Phone       string
	ProfileID   *uuid.UUID
	MergeFields map[string]string
}

// Recipient is one postcard target within a campaign
type Recipient struct {
	shared.TenantAggregateRoot
	CampaignID  uuid.UUID
	Name        string
	Address     valueobject.PostalAddress
	Email       string
	Phone       string
	ProfileID   *uuid.UUID
	MergeFields map[string]string

	Status            RecipientStatus
	Suppressed        bool
	SuppressionReason string

	VendorObjectID         *string
	Attempts               int
	ActualCost             int64
	TrackingURL            string
	ExpectedDeliveryDate   *time.Time
	SendError              string
	VendorResponseSnapshot string
	SentAt                 *time.Time
	DeliveredAt            *time.Time
}

// NewRecipient creates a pending recipient for a campaign
func NewRecipient(tenantID, campaignID uuid.UUID, in RecipientInput) (*Recipient, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if campaignID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CAMPAIGN", "Campaign ID cannot be empty")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Recipient name cannot be empty")
	}
	if len(name) > 40 {
		return nil, shared.NewDomainError("INVALID_NAME", "Recipient name cannot exceed 40 characters")
	}
	if in.Address.IsEmpty() {
		return nil, shared.NewDomainError("INVALID_ADDRESS", "Recipient address is required")
	}

	fields := make(map[string]string, len(in.MergeFields))
	for k, v := range in.MergeFields {
		fields[k] = v
	}

	return &Recipient{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		CampaignID:          campaignID,
		Name:                name,
		Address:             in.Address,
		Email:               valueobject.NormalizeEmail(in.Email),
		Phone:               strings.TrimSpace(in.Phone),
		ProfileID:           in.ProfileID,
		MergeFields:         fields,
		Status:              RecipientStatusPending,
	}, nil
}

// ApplySuppression stores the outcome of a suppression evaluation
func (r *Recipient) ApplySuppression(suppressed bool, reason string) {
	r.Suppressed = suppressed
	if suppressed {
		r.SuppressionReason = reason
	} else {
		r.SuppressionReason = ""
	}
	r.touch()
}

// IsSendable returns true if dispatch should submit this recipient
func (r *Recipient) IsSendable(override bool) bool {
	if r.Status != RecipientStatusPending {
		return false
	}
	return !r.Suppressed || override
}

// HasVendorObject returns true once the vendor has assigned an object id
func (r *Recipient) HasVendorObject() bool {
	return r.VendorObjectID != nil && *r.VendorObjectID != ""
}

// MarkSending starts a dispatch attempt
func (r *Recipient) MarkSending() error {
	if err := r.transition(RecipientStatusSending); err != nil {
		return err
	}
	r.Attempts++
	r.SendError = ""
	return nil
}

// IdempotencyKey identifies the current dispatch attempt towards the vendor
func (r *Recipient) IdempotencyKey() string {
	return r.ID.String() + "-" + strconv.Itoa(r.Attempts)
}

// SentDetails is the vendor acceptance recorded on a recipient
type SentDetails struct {
	VendorObjectID       string
	Cost                 int64
	TrackingURL          string
	ExpectedDeliveryDate *time.Time
	Snapshot             string
}

// MarkSent records a successful vendor submission
func (r *Recipient) MarkSent(d SentDetails, now time.Time) error {
	if d.VendorObjectID == "" {
		return shared.NewDomainError("INVALID_INPUT", "Vendor object id is required")
	}
	if r.HasVendorObject() && *r.VendorObjectID != d.VendorObjectID {
		return ErrVendorObjectConflict
	}
	if err := r.transition(RecipientStatusSent); err != nil {
		return err
	}
	id := d.VendorObjectID
	r.VendorObjectID = &id
	r.ActualCost = d.Cost
	r.TrackingURL = d.TrackingURL
	r.ExpectedDeliveryDate = d.ExpectedDeliveryDate
	r.VendorResponseSnapshot = truncateSnapshot(d.Snapshot)
	r.SendError = ""
	r.SentAt = &now
	return nil
}

// MarkFailed records a failed attempt with a user-facing message. vendorObjectID is
// set when the vendor accepted the request and later rejected it.
func (r *Recipient) MarkFailed(message string, vendorObjectID string) error {
	if vendorObjectID != "" && r.HasVendorObject() && *r.VendorObjectID != vendorObjectID {
		return ErrVendorObjectConflict
	}
	if err := r.transition(RecipientStatusFailed); err != nil {
		return err
	}
	if vendorObjectID != "" {
		id := vendorObjectID
		r.VendorObjectID = &id
	}
	r.ActualCost = 0
	r.SendError = message
	return nil
}

// ApplyDeliveryStatus advances a submitted recipient to a reconciled status.
// It returns false when the status is unchanged or the move is not allowed.
func (r *Recipient) ApplyDeliveryStatus(target RecipientStatus, now time.Time) bool {
	if target == r.Status || !r.Status.IsReconcilable() {
		return false
	}
	old := r.Status
	if err := r.transition(target); err != nil {
		return false
	}
	if target == RecipientStatusDelivered && r.DeliveredAt == nil {
		r.DeliveredAt = &now
	}
	if target == RecipientStatusFailed {
		r.ActualCost = 0
	}
	r.AddDomainEvent(NewRecipientStatusChangedEvent(r, old, target))
	return true
}

// ResetForRetry returns a failed recipient to pending, clearing the previous attempt
func (r *Recipient) ResetForRetry() error {
	if r.Status != RecipientStatusFailed {
		return shared.NewDomainError(ErrRecipientInvalidTransition.Code,
			"Only failed recipients can be reset, current status: "+r.Status.String())
	}
	if err := r.transition(RecipientStatusPending); err != nil {
		return err
	}
	r.VendorObjectID = nil
	r.SendError = ""
	r.VendorResponseSnapshot = ""
	r.ActualCost = 0
	r.TrackingURL = ""
	r.ExpectedDeliveryDate = nil
	r.SentAt = nil
	return nil
}

// StartValidation begins the address-correction round trip
func (r *Recipient) StartValidation() error {
	return r.transition(RecipientStatusValidating)
}

// CompleteValidation stores the corrected address and returns to pending
func (r *Recipient) CompleteValidation(addr valueobject.PostalAddress) error {
	if addr.IsEmpty() {
		return shared.NewDomainError("INVALID_ADDRESS", "Corrected address is required")
	}
	if r.Status != RecipientStatusValidating {
		return shared.NewDomainError(ErrRecipientInvalidTransition.Code,
			"Recipient is not awaiting address correction")
	}
	r.Address = addr
	return r.transition(RecipientStatusPending)
}

// MergeVariables returns the personalization values, including the name and
// address fields, used when rendering HTML artwork
func (r *Recipient) MergeVariables() map[string]string {
	vars := map[string]string{
		"name":          r.Name,
		"address_line1": r.Address.Line1(),
		"address_line2": r.Address.Line2(),
		"address_city":  r.Address.City(),
		"address_state": r.Address.State(),
		"address_zip":   r.Address.Zip(),
	}
	if first, _, ok := strings.Cut(r.Name, " "); ok {
		vars["first_name"] = first
	} else {
		vars["first_name"] = r.Name
	}
	for k, v := range r.MergeFields {
		vars[k] = v
	}
	return vars
}

func (r *Recipient) transition(target RecipientStatus) error {
	if !r.Status.CanTransitionTo(target) {
		return shared.NewDomainError(ErrRecipientInvalidTransition.Code,
			"Cannot transition recipient from "+r.Status.String()+" to "+target.String())
	}
	r.Status = target
	r.touch()
	return nil
}

func (r *Recipient) touch() {
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
}

// truncateSnapshot caps s at MaxSnapshotBytes without splitting a rune
func truncateSnapshot(s string) string {
	if len(s) <= MaxSnapshotBytes {
		return s
	}
	n := MaxSnapshotBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
