package campaign

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalStatusFor(t *testing.T) {
	tests := []struct {
		sent, failed int
		expected     CampaignStatus
	}{
		{0, 3, CampaignStatusFailed},
		{0, 0, CampaignStatusFailed},
		{3, 0, CampaignStatusCompleted},
		{2, 1, CampaignStatusCompletedWithErrors},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TerminalStatusFor(tt.sent, tt.failed), "sent=%d failed=%d", tt.sent, tt.failed)
		// deterministic
		assert.Equal(t, TerminalStatusFor(tt.sent, tt.failed), TerminalStatusFor(tt.sent, tt.failed))
	}
}

func TestCampaignStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CampaignStatus
		allowed  bool
	}{
		{CampaignStatusDraft, CampaignStatusProcessing, true},
		{CampaignStatusDraft, CampaignStatusScheduled, true},
		{CampaignStatusDraft, CampaignStatusCancelled, false},
		{CampaignStatusScheduled, CampaignStatusCancelled, true},
		{CampaignStatusScheduled, CampaignStatusDraft, true},
		{CampaignStatusProcessing, CampaignStatusCancelled, false},
		{CampaignStatusProcessing, CampaignStatusCompletedWithErrors, true},
		{CampaignStatusCompleted, CampaignStatusCancelled, false},
		{CampaignStatusFailed, CampaignStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	for _, s := range AllCampaignStatuses() {
		if s.IsTerminal() {
			for _, target := range AllCampaignStatuses() {
				assert.False(t, s.CanTransitionTo(target), "%s must not leave terminal state", s)
			}
		}
	}
}

func TestRecipientStatus_Classification(t *testing.T) {
	for _, s := range AllRecipientStatuses() {
		assert.True(t, s.IsValid())
	}
	assert.True(t, RecipientStatusReturned.IsBillable())
	assert.False(t, RecipientStatusFailed.IsBillable())
	assert.False(t, RecipientStatusPending.IsSubmitted())
	assert.True(t, RecipientStatusInTransit.IsReconcilable())
	assert.False(t, RecipientStatusDelivered.IsReconcilable())
	assert.False(t, RecipientStatusDelivered.CanTransitionTo(RecipientStatusInTransit))
}

func TestStatus_UnmarshalRejectsUnknown(t *testing.T) {
	var payload struct {
		Status CampaignStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"completed_with_errors"}`), &payload))
	assert.Equal(t, CampaignStatusCompletedWithErrors, payload.Status)
	assert.Error(t, json.Unmarshal([]byte(`{"status":"3"}`), &payload))

	var r struct {
		Status RecipientStatus `json:"status"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"status":"lost"}`), &r))

	var opts struct {
		Class MailClass `json:"class"`
		Size  MailSize  `json:"size"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"class":"priority"}`), &opts))
	assert.Error(t, json.Unmarshal([]byte(`{"size":"8x10"}`), &opts))

	_, err := ParseRecipientStatus("sent")
	assert.NoError(t, err)
}

func TestMailClass_VendorMailType(t *testing.T) {
	assert.Equal(t, "usps_first_class", MailClassFirstClass.VendorMailType())
	assert.Equal(t, "usps_standard", MailClassStandard.VendorMailType())
}
