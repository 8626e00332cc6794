package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Header names set on every webhook request
const (
	HeaderSignature = "X-Postcard-Signature"
	HeaderTimestamp = "X-Postcard-Timestamp"
	HeaderEvent     = "X-Postcard-Event"

	EventCampaignResult = "campaign.result"
)

// ErrWebhookRejected is returned when the receiver answers with a non-2xx status
var ErrWebhookRejected = errors.New("notification webhook rejected the request")

// WebhookNotifier posts campaign results as JSON to a configured URL. When a
// secret is set the body is signed with HMAC-SHA256 over "<timestamp>.<body>".
type WebhookNotifier struct {
	url        string
	secret     []byte
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewWebhookNotifier creates a WebhookNotifier
func NewWebhookNotifier(cfg config.NotificationConfig, logger *zap.Logger) (*WebhookNotifier, error) {
	u, err := url.Parse(cfg.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid notification webhook url %q", cfg.WebhookURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:        u.String(),
		secret:     []byte(cfg.WebhookSecret),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// NotifyCampaignResult posts the result
func (n *WebhookNotifier) NotifyCampaignResult(ctx context.Context, c *campaign.Campaign, status campaign.CampaignStatus, cause error) error {
	body, err := json.Marshal(NewCampaignResult(c, status, cause))
	if err != nil {
		return fmt.Errorf("failed to encode campaign result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	ts := strconv.FormatInt(n.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, EventCampaignResult)
	req.Header.Set(HeaderTimestamp, ts)
	if len(n.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(n.secret, ts, body))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification webhook failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}

	n.logger.Debug("Campaign result delivered",
		zap.String("campaign_id", c.ID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>"
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
