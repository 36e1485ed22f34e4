package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"palaver/internal/notify"
)

type authServer struct {
	mu         sync.Mutex
	tokenCalls int
	// responses returned by the token endpoint, in order; the last one
	// repeats.
	tokenResponses []map[string]any
}

func (a *authServer) start(t *testing.T) *OAuthClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /device", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if r.PostForm.Get("client_id") != "client-1" {
			t.Errorf("device code request missing client_id, got %q", r.PostForm.Get("client_id"))
		}
		writeJSON(t, w, map[string]any{
			"device_code":      "device-123",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://example.com/link",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		a.mu.Lock()
		i := a.tokenCalls
		a.tokenCalls++
		if i >= len(a.tokenResponses) {
			i = len(a.tokenResponses) - 1
		}
		resp := a.tokenResponses[i]
		a.mu.Unlock()
		writeJSON(t, w, resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewOAuthClient(OAuthConfig{
		DeviceCodeURL: srv.URL + "/device",
		TokenURL:      srv.URL + "/token",
		ClientID:      "client-1",
	}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Error(err)
	}
}

func newTestFlow(client *OAuthClient) (*Flow, func() []string) {
	var mu sync.Mutex
	var keys []string
	flow := NewFlow(client, notify.Func(func(titleKey, _ string, _ ...any) {
		mu.Lock()
		keys = append(keys, titleKey)
		mu.Unlock()
	}))
	flow.sleep = func(context.Context, time.Duration) error { return nil }
	return flow, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), keys...)
	}
}

func TestFlowPendingThenSuccess(t *testing.T) {
	srv := &authServer{tokenResponses: []map[string]any{
		{"error": "authorization_pending"},
		{"error": "authorization_pending"},
		{"access_token": "access-1", "refresh_token": "refresh-1", "expires_in": 3600},
	}}
	client := srv.start(t)
	flow, keys := newTestFlow(client)

	data, err := flow.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if data.UserCode != "ABCD-EFGH" || data.VerificationURI != "https://example.com/link" {
		t.Errorf("unexpected flow data: %+v", data)
	}
	if data.Interval != time.Second {
		t.Errorf("interval = %v, want 1s", data.Interval)
	}
	if flow.State() != StateAwaitingUser {
		t.Errorf("state = %v, want awaiting_user", flow.State())
	}
	if flow.Remaining() <= 0 {
		t.Error("expected a running countdown")
	}

	token, err := flow.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken != "access-1" || token.RefreshToken != "refresh-1" {
		t.Errorf("unexpected token: %+v", token)
	}
	if token.Expiry.IsZero() {
		t.Error("expected expiry derived from expires_in")
	}
	if flow.State() != StateSuccess {
		t.Errorf("state = %v, want success", flow.State())
	}

	got := keys()
	want := []string{"api.auth.pending", "api.auth.working", "api.auth.finished"}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %s, want %s", i, got[i], want[i])
		}
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.tokenCalls != 3 {
		t.Errorf("token endpoint hit %d times, want 3", srv.tokenCalls)
	}
}

func TestFlowSlowDown(t *testing.T) {
	srv := &authServer{tokenResponses: []map[string]any{
		{"error": "slow_down"},
		{"access_token": "access-1"},
	}}
	client := srv.start(t)
	flow, _ := newTestFlow(client)

	var waits []time.Duration
	flow.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if _, err := flow.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := flow.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(waits) != 2 {
		t.Fatalf("slept %d times, want 2", len(waits))
	}
	if waits[0] != time.Second {
		t.Errorf("first wait = %v, want the advertised interval", waits[0])
	}
	if waits[1] != 6*time.Second {
		t.Errorf("wait after slow_down = %v, want interval+5s", waits[1])
	}
}

func TestFlowTerminalErrors(t *testing.T) {
	cases := []struct {
		oauthErr  string
		wantErr   error
		wantState FlowState
	}{
		{"expired_token", ErrFlowExpired, StateExpired},
		{"authorization_declined", ErrFlowDenied, StateDenied},
		{"access_denied", ErrFlowDenied, StateDenied},
	}
	for _, tc := range cases {
		t.Run(tc.oauthErr, func(t *testing.T) {
			srv := &authServer{tokenResponses: []map[string]any{{"error": tc.oauthErr}}}
			client := srv.start(t)
			flow, _ := newTestFlow(client)

			if _, err := flow.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			_, err := flow.Poll(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if flow.State() != tc.wantState {
				t.Errorf("state = %v, want %v", flow.State(), tc.wantState)
			}
		})
	}
}

func TestFlowLocalExpiry(t *testing.T) {
	srv := &authServer{tokenResponses: []map[string]any{{"error": "authorization_pending"}}}
	client := srv.start(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	flow, _ := newTestFlow(client)
	if _, err := flow.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// the code expires before the user ever approves
	now = now.Add(time.Hour)
	if flow.Remaining() != 0 {
		t.Errorf("remaining = %v, want 0", flow.Remaining())
	}
	if _, err := flow.Poll(context.Background()); !errors.Is(err, ErrFlowExpired) {
		t.Errorf("err = %v, want ErrFlowExpired", err)
	}
	if flow.State() != StateExpired {
		t.Errorf("state = %v, want expired", flow.State())
	}
}

func TestFlowCancelledContext(t *testing.T) {
	srv := &authServer{tokenResponses: []map[string]any{{"error": "authorization_pending"}}}
	client := srv.start(t)
	flow, _ := newTestFlow(client)
	flow.sleep = sleepCtx

	if _, err := flow.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := flow.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOAuthRefresh(t *testing.T) {
	srv := &authServer{tokenResponses: []map[string]any{
		{"access_token": "new-access", "expires_in": 3600},
	}}
	client := srv.start(t)

	token, err := client.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken != "new-access" {
		t.Errorf("access = %s", token.AccessToken)
	}
	// refresh token is carried over when the server omits it
	if token.RefreshToken != "old-refresh" {
		t.Errorf("refresh = %s, want old-refresh", token.RefreshToken)
	}
}

func TestOAuthRefreshRejected(t *testing.T) {
	srv := &authServer{tokenResponses: []map[string]any{{"error": "invalid_grant"}}}
	client := srv.start(t)
	if _, err := client.Refresh(context.Background(), "stale"); err == nil {
		t.Error("expected an error for a rejected refresh")
	}
}
