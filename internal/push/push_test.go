package push

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/socdo/notifyd/internal/models"
)

func testPrivateKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return key, string(pem.EncodeToMemory(block))
}

func writeServiceAccount(t *testing.T, account ServiceAccount) string {
	t.Helper()
	raw, err := json.Marshal(account)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "service-account.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestCredentialCacheReusesToken(t *testing.T) {
	key, keyPEM := testPrivateKeyPEM(t)

	var exchanges atomic.Int64
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, jwtBearerGrant, r.FormValue("grant_type"))

		// The assertion must be signed with the account key and carry the
		// messaging scope.
		parsed, err := jwt.Parse(r.FormValue("assertion"), func(tok *jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		require.NoError(t, err)
		claims := parsed.Claims.(jwt.MapClaims)
		require.Equal(t, "svc@example.iam.gserviceaccount.com", claims["iss"])
		require.Equal(t, messagingScope, claims["scope"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	account := &ServiceAccount{
		ProjectID:   "demo-project",
		ClientEmail: "svc@example.iam.gserviceaccount.com",
		PrivateKey:  keyPEM,
		TokenURI:    tokenServer.URL,
	}
	cache, err := NewCredentialCache(account, tokenServer.Client())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		token, err := cache.Token(context.Background())
		require.NoError(t, err)
		require.Equal(t, "at-1", token)
	}
	require.Equal(t, int64(1), exchanges.Load())

	// Within the safety margin of expiry the token is refreshed.
	cache.now = func() time.Time { return time.Now().Add(time.Hour - 30*time.Second) }
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), exchanges.Load())
}

func TestCredentialCacheRejectsBadKey(t *testing.T) {
	_, err := NewCredentialCache(&ServiceAccount{
		ProjectID:   "demo",
		ClientEmail: "svc@example.com",
		PrivateKey:  "not a key",
	}, nil)
	require.Error(t, err)
}

func TestLoadServiceAccountValidation(t *testing.T) {
	_, keyPEM := testPrivateKeyPEM(t)

	path := writeServiceAccount(t, ServiceAccount{ProjectID: "demo", PrivateKey: keyPEM})
	_, err := LoadServiceAccount(path)
	require.ErrorContains(t, err, "client_email")

	path = writeServiceAccount(t, ServiceAccount{
		ProjectID:   "demo",
		ClientEmail: "svc@example.com",
		PrivateKey:  keyPEM,
	})
	account, err := LoadServiceAccount(path)
	require.NoError(t, err)
	require.Equal(t, "demo", account.ProjectID)
}

func newTestClient(t *testing.T, send http.HandlerFunc) *Client {
	t.Helper()
	_, keyPEM := testPrivateKeyPEM(t)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-test","expires_in":3600}`))
	}))
	t.Cleanup(tokenServer.Close)

	sendServer := httptest.NewServer(send)
	t.Cleanup(sendServer.Close)

	path := writeServiceAccount(t, ServiceAccount{
		ProjectID:   "demo-project",
		ClientEmail: "svc@example.iam.gserviceaccount.com",
		PrivateKey:  keyPEM,
		TokenURI:    tokenServer.URL,
	})

	client, err := NewClient(Config{
		CredentialsFile: path,
		Endpoint:        sendServer.URL,
	})
	require.NoError(t, err)
	return client
}

func TestClientSendBuildsEnvelope(t *testing.T) {
	var captured fcmEnvelope
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"name":"projects/demo-project/messages/1"}`))
	})

	err := client.Send(context.Background(), "device-token-1", Message{
		Title:    "Order received",
		Body:     "Order #100 was received",
		Data:     map[string]string{"order_id": "100"},
		Priority: models.PriorityHigh,
	})
	require.NoError(t, err)

	require.Equal(t, "device-token-1", captured.Message.Token)
	require.Equal(t, "Order received", captured.Message.Notification.Title)
	require.Equal(t, "100", captured.Message.Data["order_id"])
	require.Equal(t, "high", captured.Message.Android.Priority)
	require.Equal(t, "10", captured.Message.APNS.Headers["apns-priority"])
	require.Equal(t, defaultChannelID, captured.Message.Android.Notification.ChannelID)
	require.Equal(t, defaultClickAction, captured.Message.Android.Notification.ClickAction)
	require.Equal(t, 1, captured.Message.APNS.Payload.APS.MutableContent)
}

func TestClientSendNormalPriority(t *testing.T) {
	var captured fcmEnvelope
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"name":"projects/demo-project/messages/2"}`))
	})

	err := client.Send(context.Background(), "device-token-2", Message{
		Title:    "Deposit confirmed",
		Body:     "done",
		Priority: models.PriorityMedium,
	})
	require.NoError(t, err)
	require.Equal(t, "normal", captured.Message.Android.Priority)
	require.Equal(t, "5", captured.Message.APNS.Headers["apns-priority"])
}

func TestBuildEnvelopeChannelOverride(t *testing.T) {
	envelope := buildEnvelope("device-token-3", Message{Title: "t", Body: "b"}, "promo_channel")
	require.Equal(t, "promo_channel", envelope.Message.Android.Notification.ChannelID)

	envelope = buildEnvelope("device-token-3", Message{Title: "t", Body: "b"}, "")
	require.Equal(t, defaultChannelID, envelope.Message.Android.Notification.ChannelID)
}

func TestClientSendUnregisteredToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`))
	})

	err := client.Send(context.Background(), "dead-token", Message{Title: "x", Body: "y"})
	require.Error(t, err)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	require.True(t, sendErr.Permanent())
	require.Equal(t, http.StatusNotFound, sendErr.StatusCode)
}

func TestClientSendTransientFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"Service unavailable.","status":"UNAVAILABLE"}}`))
	})

	err := client.Send(context.Background(), "device-token-3", Message{Title: "x", Body: "y"})
	require.Error(t, err)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	require.False(t, sendErr.Permanent())
}
