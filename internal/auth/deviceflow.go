package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"palaver/internal/notify"
)

const defaultPollInterval = 5 * time.Second

var (
	ErrFlowExpired = errors.New("device authorization expired")
	ErrFlowDenied  = errors.New("device authorization declined")
)

// FlowState tracks the device authorization grant progress.
type FlowState int

const (
	StateIdle FlowState = iota
	StateAwaitingUser
	StatePolling
	StateSuccess
	StateExpired
	StateDenied
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUser:
		return "awaiting_user"
	case StatePolling:
		return "polling"
	case StateSuccess:
		return "success"
	case StateExpired:
		return "expired"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// DeviceFlowData is what a front end shows the user: where to go and
// what code to enter.
type DeviceFlowData struct {
	VerificationURI         string
	VerificationURIComplete string
	UserCode                string
	// Message is the ready-made instruction text some authorization
	// servers include.
	Message   string
	ExpiresIn time.Duration
	Interval  time.Duration
}

// Token is the result of a completed grant or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type OAuthConfig struct {
	DeviceCodeURL string
	TokenURL      string
	ClientID      string
	Scope         string
}

func (c *OAuthConfig) Validate() error {
	if c.DeviceCodeURL == "" {
		return errors.New("device code URL is required")
	}
	if c.TokenURL == "" {
		return errors.New("token URL is required")
	}
	if c.ClientID == "" {
		return errors.New("oauth client id is required")
	}
	return nil
}

// OAuthClient talks to the authorization server. It is shared by the
// interactive device flow and by silent session refreshes.
type OAuthClient struct {
	OAuthConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewOAuthClient(config OAuthConfig, httpClient *http.Client) (*OAuthClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &OAuthClient{OAuthConfig: config, httpClient: httpClient, now: time.Now}, nil
}

func (c *OAuthClient) postForm(ctx context.Context, endpoint string, form url.Values) (map[string]any, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("authorization server unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("authorization server sent malformed response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *OAuthClient) token(ctx context.Context, form url.Values) (Token, string, error) {
	body, _, err := c.postForm(ctx, c.TokenURL, form)
	if err != nil {
		return Token{}, "", err
	}
	if oauthErr, _ := body["error"].(string); oauthErr != "" {
		return Token{}, oauthErr, nil
	}
	access, _ := body["access_token"].(string)
	if access == "" {
		return Token{}, "", errors.New("token response missing access_token")
	}
	token := Token{AccessToken: access}
	token.RefreshToken, _ = body["refresh_token"].(string)
	if expiresIn, ok := body["expires_in"].(float64); ok && expiresIn > 0 {
		token.Expiry = c.now().Add(time.Duration(expiresIn) * time.Second)
	}
	return token, "", nil
}

// Refresh exchanges a refresh token for a fresh access token.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.ClientID},
	}
	token, oauthErr, err := c.token(ctx, form)
	if err != nil {
		return Token{}, err
	}
	if oauthErr != "" {
		return Token{}, fmt.Errorf("token refresh rejected: %s", oauthErr)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// Flow runs one device authorization grant. Not reusable: make a new
// Flow for every login attempt.
type Flow struct {
	client   *OAuthClient
	sink     notify.Sink
	state    FlowState
	data     DeviceFlowData
	device   string
	deadline time.Time
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewFlow(client *OAuthClient, sink notify.Sink) *Flow {
	if sink == nil {
		sink = notify.Discard
	}
	return &Flow{
		client: client,
		sink:   sink,
		state:  StateIdle,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Flow) State() FlowState {
	return f.state
}

// Remaining reports how long the user code is still valid, for
// countdown display.
func (f *Flow) Remaining() time.Duration {
	if f.deadline.IsZero() {
		return 0
	}
	if left := f.deadline.Sub(f.client.now()); left > 0 {
		return left
	}
	return 0
}

// Start requests a device code and returns what to show the user.
func (f *Flow) Start(ctx context.Context) (DeviceFlowData, error) {
	form := url.Values{"client_id": {f.client.ClientID}}
	if f.client.Scope != "" {
		form.Set("scope", f.client.Scope)
	}
	body, status, err := f.client.postForm(ctx, f.client.DeviceCodeURL, form)
	if err != nil {
		return DeviceFlowData{}, err
	}
	if status < 200 || status > 299 {
		return DeviceFlowData{}, fmt.Errorf("device code request failed with status %d", status)
	}

	f.device, _ = body["device_code"].(string)
	if f.device == "" {
		return DeviceFlowData{}, errors.New("device code response missing device_code")
	}
	f.data = DeviceFlowData{
		Interval:  defaultPollInterval,
		ExpiresIn: 15 * time.Minute,
	}
	f.data.UserCode, _ = body["user_code"].(string)
	f.data.VerificationURI, _ = body["verification_uri"].(string)
	f.data.VerificationURIComplete, _ = body["verification_uri_complete"].(string)
	f.data.Message, _ = body["message"].(string)
	if v, ok := body["expires_in"].(float64); ok && v > 0 {
		f.data.ExpiresIn = time.Duration(v) * time.Second
	}
	if v, ok := body["interval"].(float64); ok && v > 0 {
		f.data.Interval = time.Duration(v) * time.Second
	}

	f.interval = f.data.Interval
	f.deadline = f.client.now().Add(f.data.ExpiresIn)
	f.state = StateAwaitingUser
	f.sink.Notify("api.auth.pending", "api.auth.pending.desc")
	return f.data, nil
}

// Poll blocks until the user approves, declines, the code expires or
// ctx is cancelled. The authorization server paces the loop; slow_down
// widens the interval by five seconds.
func (f *Flow) Poll(ctx context.Context) (Token, error) {
	if f.state != StateAwaitingUser {
		return Token{}, fmt.Errorf("flow not started (state %s)", f.state)
	}
	f.state = StatePolling
	f.sink.Notify("api.auth.working", "api.auth.working.desc")

	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {f.device},
		"client_id":   {f.client.ClientID},
	}
	for {
		if !f.client.now().Before(f.deadline) {
			f.state = StateExpired
			return Token{}, ErrFlowExpired
		}
		if err := f.sleep(ctx, f.interval); err != nil {
			return Token{}, err
		}

		token, oauthErr, err := f.client.token(ctx, form)
		if err != nil {
			return Token{}, err
		}
		switch oauthErr {
		case "":
			f.state = StateSuccess
			f.sink.Notify("api.auth.finished", "api.auth.finished.desc")
			return token, nil
		case "authorization_pending":
			continue
		case "slow_down":
			f.interval += 5 * time.Second
			continue
		case "expired_token":
			f.state = StateExpired
			return Token{}, ErrFlowExpired
		case "authorization_declined", "access_denied":
			f.state = StateDenied
			return Token{}, ErrFlowDenied
		default:
			return Token{}, fmt.Errorf("device authorization failed: %s", oauthErr)
		}
	}
}
