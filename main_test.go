package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palaver/internal/api"
	"palaver/internal/auth"
	"palaver/internal/chatview"
	"palaver/internal/notify"
	"palaver/internal/services"
)

const (
	selfUUID   = "11111111111111111111111111111111"
	friendUUID = "22222222222222222222222222222222"
)

// integrationBackend is a minimal fake of the real API, just enough
// surface for a login-to-chat round trip.
func integrationBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	requireToken := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "integration-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}
	respond := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux.HandleFunc("GET /account", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		respond(w, map[string]any{"uuid": selfUUID, "username": "integration-self"})
	})
	mux.HandleFunc("GET /users/{uuid}", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		uuid := r.PathValue("uuid")
		name := map[string]string{selfUUID: "integration-self", friendUUID: "friend"}[uuid]
		if name == "" {
			w.WriteHeader(http.StatusNotFound)
			respond(w, map[string]any{"description": "not found"})
			return
		}
		respond(w, map[string]any{
			"uuid":       uuid,
			"username":   name,
			"relation":   "friend",
			"registered": "2024-01-01T00:00:00Z",
			"status":     map[string]any{"type": "offline"},
		})
	})
	mux.HandleFunc("GET /account/relations/friends", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		respond(w, []string{friendUUID})
	})
	mux.HandleFunc("GET /channels", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		respond(w, []string{"ch-1"})
	})
	mux.HandleFunc("GET /channels/ch-1", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		respond(w, map[string]any{
			"id":           "ch-1",
			"kind":         "dm",
			"participants": []string{selfUUID, friendUUID},
			"persistence":  map[string]any{"type": "channel"},
			"messages": []any{map[string]any{
				"id":        "m-1",
				"sender":    friendUUID,
				"content":   "hello there",
				"timestamp": "2025-06-01T12:00:00Z",
			}},
		})
	})
	mux.HandleFunc("POST /channels/ch-1/messages", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		respond(w, map[string]any{
			"id":        "m-2",
			"sender":    selfUUID,
			"content":   body["content"],
			"timestamp": "2025-06-01T12:01:00Z",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginToChatRoundTrip(t *testing.T) {
	backend := integrationBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := auth.NewStore(filepath.Join(t.TempDir(), "accounts.db"), "integration-secret")
	require.NoError(t, err)
	defer store.Close()

	session := auth.NewSession(store, nil, nil)
	// a token fresh out of the device flow has no identity attached
	require.NoError(t, session.Activate(auth.Account{
		AuthToken: "integration-token",
		Expiry:    time.Now().Add(24 * time.Hour),
	}))

	client := api.NewClient(api.ClientConfig{
		BaseURL: backend.URL,
		Tokens:  session,
	})

	account, err := hydrateIdentity(ctx, session, client)
	require.NoError(t, err)
	assert.Equal(t, selfUUID, account.UUID)
	assert.Equal(t, "integration-self", account.Name)

	// the resolved identity is persisted as the current account
	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, selfUUID, current.UUID)
	assert.Equal(t, "integration-token", current.AuthToken)

	users := services.NewUserService(ctx, client, services.UserServiceConfig{
		SelfUUID: account.UUID,
	})
	relations := services.NewRelationService(client, users, notify.Discard)
	channels := services.NewChannelService(client, users, account.UUID)

	friends, err := relations.Friends(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "friend", friends[0].Name)

	list, err := channels.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	channel := list[0]
	assert.Equal(t, "friend", channel.DisplayName())
	require.Len(t, channel.Messages, 1)

	// the live view seeds from the channel and picks up the echo of a
	// sent message through the broker
	broker := chatview.NewBroker()
	view := chatview.New(chatview.Config{Channel: channel, Fetcher: channels})
	view.Attach(broker)
	defer view.Close()

	sent, err := channels.SendMessage(ctx, channel.ID, "hi friend")
	require.NoError(t, err)
	assert.Equal(t, "m-2", sent.ID)
	broker.Dispatch(sent)

	msgs := view.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, "hi friend", msgs[1].Content)
}

func TestStaticActivity(t *testing.T) {
	title, description := staticActivity("Playing:on the test server")()
	assert.Equal(t, "Playing", title)
	assert.Equal(t, "on the test server", description)

	title, description = staticActivity("")()
	assert.Empty(t, title)
	assert.Empty(t, description)
}
