// Package taskqueue carries campaign dispatch requests over AMQP so dispatch
// can run in a separate worker process.
package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidMessage is returned for a message body that is not a dispatch request
var ErrInvalidMessage = errors.New("invalid dispatch message")

// DispatchMessage is the body of one queued dispatch request
type DispatchMessage struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
}

// Encode serializes the message
func (m DispatchMessage) Encode() ([]byte, error) {
	if m.TenantID == uuid.Nil || m.CampaignID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant and campaign ids are required", ErrInvalidMessage)
	}
	return json.Marshal(m)
}

// DecodeDispatchMessage parses a message body
func DecodeDispatchMessage(body []byte) (DispatchMessage, error) {
	var m DispatchMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return DispatchMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.TenantID == uuid.Nil || m.CampaignID == uuid.Nil {
		return DispatchMessage{}, fmt.Errorf("%w: tenant and campaign ids are required", ErrInvalidMessage)
	}
	return m, nil
}
