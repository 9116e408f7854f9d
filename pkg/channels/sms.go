package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dotsetgreg/jarvis/pkg/bus"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/logger"
)

const (
	twilioAPIBase = "https://api.twilio.com/2010-04-01"
	// Carriers reject single SMS segments well before this, but Twilio
	// accepts up to 1600 characters and splits them itself.
	smsMaxMessageLen = 1600
)

// SMSChannel sends replies through the Twilio REST API. Inbound SMS arrives
// via the gateway webhook, not here, so Start only marks the channel ready.
type SMSChannel struct {
	*BaseChannel
	accountSID string
	authToken  string
	fromNumber string
	apiBase    string
	httpClient *http.Client
}

func NewSMSChannel(cfg config.SMSConfig, bus *bus.MessageBus) (*SMSChannel, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("sms account_sid and auth_token are required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, fmt.Errorf("sms from_number is required")
	}

	return &SMSChannel{
		BaseChannel: NewBaseChannel("sms", bus, cfg.AllowFrom),
		accountSID:  cfg.AccountSID,
		authToken:   cfg.AuthToken,
		fromNumber:  cfg.FromNumber,
		apiBase:     twilioAPIBase,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *SMSChannel) Start(ctx context.Context) error {
	c.setRunning(true)
	logger.InfoCF("sms", "SMS channel ready", map[string]interface{}{
		"from": c.fromNumber,
	})
	return nil
}

func (c *SMSChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	logger.InfoC("sms", "SMS channel stopped")
	return nil
}

func (c *SMSChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("sms channel not running")
	}
	if strings.TrimSpace(msg.ChatID) == "" {
		return fmt.Errorf("sms destination number is empty")
	}

	content := msg.Content
	if len(content) > smsMaxMessageLen {
		content = content[:smsMaxMessageLen]
	}

	form := url.Values{}
	form.Set("To", msg.ChatID)
	form.Set("From", c.fromNumber)
	form.Set("Body", content)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.apiBase, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("twilio API request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	logger.DebugCF("sms", "Message sent", map[string]interface{}{
		"to": msg.ChatID,
	})
	return nil
}
