// Package push implements the FCM HTTP v1 gateway client: service-account
// credential exchange with caching, per-token message delivery, and error
// classification that distinguishes dead device tokens from transient
// gateway failures.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/socdo/notifyd/pkg/logger"
	"github.com/socdo/notifyd/pkg/metrics"
)

const (
	defaultSendTimeout = 10 * time.Second
	sendEndpointFormat = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

	// Gateway error code marking a token that no longer maps to an app
	// install. Retrying it can never succeed.
	codeUnregistered = "UNREGISTERED"
)

// SendError is a non-2xx response from the gateway, carrying the error code
// extracted from the response details when present.
type SendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("push: gateway returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("push: gateway returned %d: %s", e.StatusCode, e.Message)
}

// Permanent reports whether the failure is tied to the device token itself
// rather than gateway conditions. Permanent failures deactivate the token
// instead of retrying.
func (e *SendError) Permanent() bool {
	return e.Code == codeUnregistered
}

// Config holds gateway client settings.
type Config struct {
	CredentialsFile string
	// Endpoint overrides the gateway URL. Leave empty for production.
	Endpoint string
	Timeout  time.Duration
	// ChannelID overrides the Android notification channel.
	ChannelID string
}

// Client sends push messages through the FCM HTTP v1 API.
type Client struct {
	creds      *CredentialCache
	httpClient *http.Client
	endpoint   string
	channelID  string
	log        *zap.Logger
}

// NewClient loads the service account and prepares the credential cache.
func NewClient(cfg Config) (*Client, error) {
	account, err := LoadServiceAccount(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	creds, err := NewCredentialCache(account, httpClient)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(sendEndpointFormat, account.ProjectID)
	}

	channelID := cfg.ChannelID
	if channelID == "" {
		channelID = defaultChannelID
	}

	return &Client{
		creds:      creds,
		httpClient: httpClient,
		endpoint:   endpoint,
		channelID:  channelID,
		log:        logger.WithModule("push"),
	}, nil
}

// Send delivers one message to one device token. A *SendError with
// Permanent() true means the token is dead and should be deactivated; any
// other error is transient and eligible for retry.
func (c *Client) Send(ctx context.Context, token string, msg Message) error {
	accessToken, err := c.creds.Token(ctx)
	if err != nil {
		metrics.GatewaySends.WithLabelValues("transient").Inc()
		return err
	}

	body, err := json.Marshal(buildEnvelope(token, msg, c.channelID))
	if err != nil {
		return fmt.Errorf("push: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewaySends.WithLabelValues("transient").Inc()
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.GatewaySends.WithLabelValues("transient").Inc()
		return fmt.Errorf("push: read send response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		metrics.GatewaySends.WithLabelValues("success").Inc()
		return nil
	}

	sendErr := classifyError(resp.StatusCode, respBody)
	if sendErr.Permanent() {
		metrics.GatewaySends.WithLabelValues("unregistered").Inc()
		c.log.Info("device token unregistered", zap.Int("status", sendErr.StatusCode))
	} else {
		metrics.GatewaySends.WithLabelValues("transient").Inc()
		c.log.Warn("gateway send failed",
			zap.Int("status", sendErr.StatusCode),
			zap.String("code", sendErr.Code))
	}
	return sendErr
}

func classifyError(status int, body []byte) *SendError {
	sendErr := &SendError{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
			Details []struct {
				ErrorCode string `json:"errorCode"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return sendErr
	}

	if payload.Error.Message != "" {
		sendErr.Message = payload.Error.Message
	}
	for _, detail := range payload.Error.Details {
		if detail.ErrorCode != "" {
			sendErr.Code = detail.ErrorCode
			break
		}
	}
	return sendErr
}
