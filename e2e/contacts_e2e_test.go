//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	contactsgrpc "github.com/vibast-solutions/ms-go-contacts/app/grpc"
	"github.com/vibast-solutions/ms-go-contacts/app/mail"

	"github.com/segmentio/kafka-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultHTTPBase  = "http://localhost:8080"
	defaultGRPCAddr  = "localhost:9090"
	defaultMailTopic = "auth_emails"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) do(t *testing.T, method, path, accessToken string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, respBody
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func waitForTCP(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("service not ready at %s", addr)
}

// mailbox reads the mail topic from the beginning and returns the first token sent to email.
type mailbox struct {
	reader *kafka.Reader
}

func newMailbox(t *testing.T) *mailbox {
	t.Helper()

	brokers := strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ",")
	return &mailbox{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       envOr("KAFKA_MAIL_TOPIC", defaultMailTopic),
		GroupID:     fmt.Sprintf("contacts-e2e-%d", time.Now().UnixNano()),
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})}
}

func (m *mailbox) tokenFor(t *testing.T, email string, kind mail.Kind) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		msg, err := m.reader.ReadMessage(ctx)
		if err != nil {
			t.Fatalf("no %s mail for %s: %v", kind, email, err)
		}

		var payload mail.Message
		if err = json.Unmarshal(msg.Value, &payload); err != nil {
			continue
		}
		if payload.To == email && payload.Kind == kind {
			return payload.Token
		}
	}
}

func (m *mailbox) Close() error {
	return m.reader.Close()
}

func TestContactsE2E(t *testing.T) {
	httpBase := envOr("CONTACTS_HTTP_URL", defaultHTTPBase)
	grpcAddr := envOr("CONTACTS_GRPC_ADDR", defaultGRPCAddr)

	if err := waitForTCP(strings.TrimPrefix(strings.TrimPrefix(httpBase, "http://"), "https://"), 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForTCP(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	client := newHTTPClient(httpBase)
	box := newMailbox(t)
	defer box.Close()

	suffix := time.Now().UnixNano()
	state := struct {
		username     string
		email        string
		password     string
		newPassword  string
		accessToken  string
		refreshToken string
		contactID    uint64
	}{
		username:    fmt.Sprintf("e2e%d", suffix),
		email:       fmt.Sprintf("e2e+%d@example.com", suffix),
		password:    "StrongPass1!",
		newPassword: "NewStrongPass1!",
	}

	abort := false
	fail := func(t *testing.T, format string, args ...any) {
		abort = true
		t.Fatalf(format, args...)
	}
	step := func(name string, fn func(t *testing.T)) {
		t.Run(name, func(t *testing.T) {
			if abort {
				t.Skip("previous step failed")
			}
			fn(t)
		})
	}

	login := func(t *testing.T, password string) (*http.Response, []byte) {
		return client.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"username": state.username,
			"password": password,
		})
	}

	step("Register", func(t *testing.T) {
		resp, body := client.do(t, http.MethodPost, "/auth/register", "", map[string]string{
			"username": state.username,
			"email":    state.email,
			"password": state.password,
		})
		if resp.StatusCode != http.StatusCreated {
			fail(t, "register status: %d body: %s", resp.StatusCode, string(body))
		}
	})

	step("RegisterDuplicateUsername", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodPost, "/auth/register", "", map[string]string{
			"username": state.username,
			"email":    "other-" + state.email,
			"password": state.password,
		})
		if resp.StatusCode != http.StatusConflict {
			fail(t, "expected duplicate register conflict, got %d", resp.StatusCode)
		}
	})

	step("LoginBeforeConfirm", func(t *testing.T) {
		resp, _ := login(t, state.password)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected login before confirm to fail, got %d", resp.StatusCode)
		}
	})

	step("ConfirmEmail", func(t *testing.T) {
		token := box.tokenFor(t, state.email, mail.KindConfirmEmail)
		resp, body := client.do(t, http.MethodPost, "/auth/confirm-email", "", map[string]string{"token": token})
		if resp.StatusCode != http.StatusOK {
			fail(t, "confirm status: %d body: %s", resp.StatusCode, string(body))
		}
	})

	step("Login", func(t *testing.T) {
		resp, body := login(t, state.password)
		if resp.StatusCode != http.StatusOK {
			fail(t, "login status: %d body: %s", resp.StatusCode, string(body))
		}

		var pair struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			TokenType    string `json:"token_type"`
		}
		if err := json.Unmarshal(body, &pair); err != nil {
			fail(t, "login unmarshal failed: %v", err)
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
			fail(t, "unexpected token pair: %s", string(body))
		}
		state.accessToken = pair.AccessToken
		state.refreshToken = pair.RefreshToken
	})

	step("Me", func(t *testing.T) {
		resp, body := client.do(t, http.MethodGet, "/users/me", state.accessToken, nil)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), state.username) {
			fail(t, "me status: %d body: %s", resp.StatusCode, string(body))
		}
	})

	step("CreateContact", func(t *testing.T) {
		birthday := time.Now().AddDate(-30, 0, 2).Format("2006-01-02")
		resp, body := client.do(t, http.MethodPost, "/contacts", state.accessToken, map[string]string{
			"first_name":   "Bob",
			"last_name":    "Builder",
			"email":        fmt.Sprintf("bob+%d@example.com", suffix),
			"phone_number": "+40700000000",
			"birthday":     birthday,
		})
		if resp.StatusCode != http.StatusCreated {
			fail(t, "create contact status: %d body: %s", resp.StatusCode, string(body))
		}

		var contact struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(body, &contact); err != nil || contact.ID == 0 {
			fail(t, "create contact response: %s", string(body))
		}
		state.contactID = contact.ID
	})

	step("SearchAndBirthdays", func(t *testing.T) {
		resp, body := client.do(t, http.MethodGet, "/contacts/search?query=build", state.accessToken, nil)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Builder") {
			fail(t, "search status: %d body: %s", resp.StatusCode, string(body))
		}

		resp, body = client.do(t, http.MethodGet, "/contacts/upcoming-birthdays?days=7", state.accessToken, nil)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Builder") {
			fail(t, "upcoming birthdays status: %d body: %s", resp.StatusCode, string(body))
		}
	})

	step("GRPCIsAuthenticated", func(t *testing.T) {
		conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			fail(t, "grpc dial failed: %v", err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		user, err := contactsgrpc.NewSessionClient(conn).IsAuthenticated(ctx, state.accessToken)
		if err != nil {
			fail(t, "IsAuthenticated failed: %v", err)
		}
		if got := user.GetFields()["username"].GetStringValue(); got != state.username {
			fail(t, "expected username %q, got %q", state.username, got)
		}

		health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil || health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			fail(t, "health check: %v %v", health.GetStatus(), err)
		}
	})

	step("RefreshRotation", func(t *testing.T) {
		resp, body := client.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"refresh_token": state.refreshToken})
		if resp.StatusCode != http.StatusOK {
			fail(t, "refresh status: %d body: %s", resp.StatusCode, string(body))
		}
		stale := state.refreshToken

		var pair struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(body, &pair); err != nil {
			fail(t, "refresh unmarshal failed: %v", err)
		}
		state.accessToken = pair.AccessToken
		state.refreshToken = pair.RefreshToken

		resp, _ = client.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"refresh_token": stale})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected replayed refresh token to fail, got %d", resp.StatusCode)
		}
	})

	step("DeleteContact", func(t *testing.T) {
		path := fmt.Sprintf("/contacts/%d", state.contactID)
		resp, _ := client.do(t, http.MethodDelete, path, state.accessToken, nil)
		if resp.StatusCode != http.StatusNoContent {
			fail(t, "delete contact status: %d", resp.StatusCode)
		}
		resp, _ = client.do(t, http.MethodGet, path, state.accessToken, nil)
		if resp.StatusCode != http.StatusNotFound {
			fail(t, "expected deleted contact to be gone, got %d", resp.StatusCode)
		}
	})

	step("PasswordReset", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodPost, "/auth/request-password-reset", "", map[string]string{"email": state.email})
		if resp.StatusCode != http.StatusOK {
			fail(t, "request reset status: %d", resp.StatusCode)
		}

		token := box.tokenFor(t, state.email, mail.KindResetPassword)
		resp, body := client.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
			"token":        token,
			"new_password": state.newPassword,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "reset status: %d body: %s", resp.StatusCode, string(body))
		}

		resp, _ = client.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"refresh_token": state.refreshToken})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected refresh token to be revoked by reset, got %d", resp.StatusCode)
		}

		resp, _ = login(t, state.password)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected old password to fail, got %d", resp.StatusCode)
		}
	})

	step("Logout", func(t *testing.T) {
		resp, body := login(t, state.newPassword)
		if resp.StatusCode != http.StatusOK {
			fail(t, "login status: %d body: %s", resp.StatusCode, string(body))
		}
		var pair struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(body, &pair); err != nil {
			fail(t, "login unmarshal failed: %v", err)
		}

		resp, _ = client.do(t, http.MethodPost, "/auth/logout", pair.AccessToken, map[string]string{"refresh_token": pair.RefreshToken})
		if resp.StatusCode != http.StatusNoContent {
			fail(t, "logout status: %d", resp.StatusCode)
		}

		resp, _ = client.do(t, http.MethodGet, "/users/me", pair.AccessToken, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected blacklisted access token to fail, got %d", resp.StatusCode)
		}
	})
}
