package campaign

import "fmt"

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft               CampaignStatus = "draft"
	CampaignStatusScheduled           CampaignStatus = "scheduled"
	CampaignStatusProcessing          CampaignStatus = "processing"
	CampaignStatusCompleted           CampaignStatus = "completed"
	CampaignStatusCompletedWithErrors CampaignStatus = "completed_with_errors"
	CampaignStatusFailed              CampaignStatus = "failed"
	CampaignStatusCancelled           CampaignStatus = "cancelled"
)

// AllCampaignStatuses returns every campaign status
func AllCampaignStatuses() []CampaignStatus {
	return []CampaignStatus{
		CampaignStatusDraft,
		CampaignStatusScheduled,
		CampaignStatusProcessing,
		CampaignStatusCompleted,
		CampaignStatusCompletedWithErrors,
		CampaignStatusFailed,
		CampaignStatusCancelled,
	}
}

// IsValid checks if the CampaignStatus is a known value
func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusProcessing,
		CampaignStatusCompleted, CampaignStatusCompletedWithErrors,
		CampaignStatusFailed, CampaignStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of CampaignStatus
func (s CampaignStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are allowed
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignStatusCompleted, CampaignStatusCompletedWithErrors,
		CampaignStatusFailed, CampaignStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s CampaignStatus) CanTransitionTo(target CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft:
		return target == CampaignStatusScheduled || target == CampaignStatusProcessing
	case CampaignStatusScheduled:
		return target == CampaignStatusDraft || target == CampaignStatusCancelled
	case CampaignStatusProcessing:
		return target == CampaignStatusCompleted ||
			target == CampaignStatusCompletedWithErrors ||
			target == CampaignStatusFailed
	case CampaignStatusCompleted, CampaignStatusCompletedWithErrors,
		CampaignStatusFailed, CampaignStatusCancelled:
		return false
	}
	return false
}

// UnmarshalText rejects unknown statuses when decoding
func (s *CampaignStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseCampaignStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseCampaignStatus converts a string into a CampaignStatus
func ParseCampaignStatus(v string) (CampaignStatus, error) {
	s := CampaignStatus(v)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown campaign status %q", v)
	}
	return s, nil
}

// TerminalStatusFor returns the terminal campaign status for a finished batch:
// failed when nothing was sent, completed when nothing failed, otherwise
// completed_with_errors.
func TerminalStatusFor(sentCount, failedCount int) CampaignStatus {
	switch {
	case sentCount == 0:
		return CampaignStatusFailed
	case failedCount == 0:
		return CampaignStatusCompleted
	default:
		return CampaignStatusCompletedWithErrors
	}
}

// RecipientStatus represents the lifecycle status of a single mail piece target
type RecipientStatus string

const (
	RecipientStatusPending    RecipientStatus = "pending"
	RecipientStatusValidating RecipientStatus = "validating"
	RecipientStatusSending    RecipientStatus = "sending"
	RecipientStatusSent       RecipientStatus = "sent"
	RecipientStatusInTransit  RecipientStatus = "in_transit"
	RecipientStatusDelivered  RecipientStatus = "delivered"
	RecipientStatusReturned   RecipientStatus = "returned"
	RecipientStatusFailed     RecipientStatus = "failed"
)

// AllRecipientStatuses returns every recipient status
func AllRecipientStatuses() []RecipientStatus {
	return []RecipientStatus{
		RecipientStatusPending,
		RecipientStatusValidating,
		RecipientStatusSending,
		RecipientStatusSent,
		RecipientStatusInTransit,
		RecipientStatusDelivered,
		RecipientStatusReturned,
		RecipientStatusFailed,
	}
}

// IsValid checks if the RecipientStatus is a known value
func (s RecipientStatus) IsValid() bool {
	switch s {
	case RecipientStatusPending, RecipientStatusValidating, RecipientStatusSending,
		RecipientStatusSent, RecipientStatusInTransit, RecipientStatusDelivered,
		RecipientStatusReturned, RecipientStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of RecipientStatus
func (s RecipientStatus) String() string {
	return string(s)
}

// IsSubmitted returns true once the vendor has accepted the mail piece
func (s RecipientStatus) IsSubmitted() bool {
	switch s {
	case RecipientStatusSent, RecipientStatusInTransit,
		RecipientStatusDelivered, RecipientStatusReturned:
		return true
	}
	return false
}

// IsBillable returns true if a recipient in this status contributes to actual cost
func (s RecipientStatus) IsBillable() bool {
	return s.IsSubmitted()
}

// IsReconcilable returns true if the status reconciler should poll the vendor
func (s RecipientStatus) IsReconcilable() bool {
	return s == RecipientStatusSent || s == RecipientStatusInTransit
}

// CanTransitionTo checks if the status can transition to the target status
func (s RecipientStatus) CanTransitionTo(target RecipientStatus) bool {
	switch s {
	case RecipientStatusPending:
		return target == RecipientStatusValidating || target == RecipientStatusSending
	case RecipientStatusValidating:
		return target == RecipientStatusPending
	case RecipientStatusSending:
		return target == RecipientStatusSent || target == RecipientStatusFailed
	case RecipientStatusSent:
		return target == RecipientStatusInTransit ||
			target == RecipientStatusDelivered ||
			target == RecipientStatusReturned ||
			target == RecipientStatusFailed
	case RecipientStatusInTransit:
		return target == RecipientStatusDelivered ||
			target == RecipientStatusReturned ||
			target == RecipientStatusFailed
	case RecipientStatusFailed:
		return target == RecipientStatusPending
	case RecipientStatusDelivered, RecipientStatusReturned:
		return false
	}
	return false
}

// UnmarshalText rejects unknown statuses when decoding
func (s *RecipientStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRecipientStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseRecipientStatus converts a string into a RecipientStatus
func ParseRecipientStatus(v string) (RecipientStatus, error) {
	s := RecipientStatus(v)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown recipient status %q", v)
	}
	return s, nil
}

// MailClass is the postal service class used for a campaign
type MailClass string

const (
	MailClassFirstClass MailClass = "first_class"
	MailClassStandard   MailClass = "standard"
)

// IsValid checks if the MailClass is a known value
func (c MailClass) IsValid() bool {
	return c == MailClassFirstClass || c == MailClassStandard
}

// String returns the string representation of MailClass
func (c MailClass) String() string {
	return string(c)
}

// VendorMailType returns the vendor's mail_type value for this class
func (c MailClass) VendorMailType() string {
	if c == MailClassStandard {
		return "usps_standard"
	}
	return "usps_first_class"
}

// UnmarshalText rejects unknown mail classes when decoding
func (c *MailClass) UnmarshalText(text []byte) error {
	v := MailClass(text)
	if !v.IsValid() {
		return fmt.Errorf("unknown mail class %q", string(text))
	}
	*c = v
	return nil
}

// MailSize is the physical postcard size
type MailSize string

const (
	MailSize4x6  MailSize = "4x6"
	MailSize6x9  MailSize = "6x9"
	MailSize6x11 MailSize = "6x11"
)

// DefaultMailSize is used when a campaign does not choose a size
const DefaultMailSize = MailSize6x9

// IsValid checks if the MailSize is a known value
func (s MailSize) IsValid() bool {
	switch s {
	case MailSize4x6, MailSize6x9, MailSize6x11:
		return true
	}
	return false
}

// String returns the string representation of MailSize
func (s MailSize) String() string {
	return string(s)
}

// UnmarshalText rejects unknown sizes when decoding
func (s *MailSize) UnmarshalText(text []byte) error {
	v := MailSize(text)
	if !v.IsValid() {
		return fmt.Errorf("unknown mail size %q", string(text))
	}
	*s = v
	return nil
}

// ArtworkKind describes where the printable artwork for one side comes from
type ArtworkKind string

const (
	// ArtworkKindPDFURL is a pre-rendered PDF reachable at a public URL
	ArtworkKindPDFURL ArtworkKind = "pdf_url"
	// ArtworkKindHTML is an HTML template merged per recipient
	ArtworkKindHTML ArtworkKind = "html"
	// ArtworkKindUploaded is a file held in object storage
	ArtworkKindUploaded ArtworkKind = "uploaded"
)

// IsValid checks if the ArtworkKind is a known value
func (k ArtworkKind) IsValid() bool {
	switch k {
	case ArtworkKindPDFURL, ArtworkKindHTML, ArtworkKindUploaded:
		return true
	}
	return false
}

// Side identifies the front or back of a postcard
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)
