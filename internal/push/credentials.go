package push

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/socdo/notifyd/pkg/metrics"
)

const (
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	messagingScope    = "https://www.googleapis.com/auth/firebase.messaging"
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL      = time.Hour
	tokenSafetyMargin = time.Minute
)

// ServiceAccount holds the subset of a Google service account key file the
// gateway needs.
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// LoadServiceAccount reads and validates a service account key file.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("push: read service account: %w", err)
	}

	var account ServiceAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("push: parse service account: %w", err)
	}
	if account.ProjectID == "" || account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, fmt.Errorf("push: service account missing project_id, client_email or private_key")
	}
	return &account, nil
}

// CredentialCache exchanges a signed service-account assertion for a
// short-lived OAuth access token and reuses it until shortly before expiry.
// Safe for concurrent use.
type CredentialCache struct {
	account    *ServiceAccount
	key        *rsa.PrivateKey
	httpClient *http.Client
	tokenURL   string
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCredentialCache parses the account's private key eagerly so a bad key
// file fails at startup.
func NewCredentialCache(account *ServiceAccount, httpClient *http.Client) (*CredentialCache, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("push: parse private key: %w", err)
	}

	tokenURL := account.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &CredentialCache{
		account:    account,
		key:        key,
		httpClient: httpClient,
		tokenURL:   tokenURL,
		now:        time.Now,
	}, nil
}

// Token returns a valid access token, refreshing when the cached one is
// within the safety margin of expiry.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenSafetyMargin)) {
		return c.token, nil
	}

	token, expiresIn, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiresAt = c.now().Add(time.Duration(expiresIn) * time.Second)
	metrics.CredentialRefreshes.Inc()
	return c.token, nil
}

func (c *CredentialCache) exchange(ctx context.Context) (string, int64, error) {
	assertion, err := c.signAssertion()
	if err != nil {
		return "", 0, err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("push: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("push: token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("push: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("push: token exchange returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("push: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("push: token response missing access_token")
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}
	return payload.AccessToken, payload.ExpiresIn, nil
}

func (c *CredentialCache) signAssertion() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss":   c.account.ClientEmail,
		"scope": messagingScope,
		"aud":   c.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("push: sign assertion: %w", err)
	}
	return signed, nil
}
