package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"palaver/internal/types"
)

func channelBackend(t *testing.T) *testBackend {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET /channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "dm1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id":           "dm1",
				"kind":         "dm",
				"name":         "stored-name",
				"persistence":  map[string]any{"type": "duration", "duration": 3600},
				"participants": []string{testSelf, testFriend},
			})
		case "g1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id":           "g1",
				"kind":         "group",
				"name":         "crew",
				"owner":        testOwner,
				"persistence":  map[string]any{"type": "channel"},
				"participants": []string{testOwner, testFriend},
				"messages": []map[string]any{
					{
						"id":        "m1",
						"sender":    testFriend,
						"content":   "hello",
						"timestamp": "2024-06-01T10:00:00Z",
					},
				},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"description": "no such channel"})
		}
	})
	return b
}

func TestChannelService_GetDM(t *testing.T) {
	b := channelBackend(t)
	client, stop := b.start(t)
	defer stop()

	svc := NewChannelService(client, newUserService(context.Background(), client), testSelf)
	ch, err := svc.Get(context.Background(), "dm1")
	if err != nil {
		t.Fatal(err)
	}
	if !ch.IsDM() {
		t.Fatal("expected a DM channel")
	}
	if len(ch.Participants) != 1 || ch.Participants[0].UUID != testFriend {
		t.Errorf("participants = %+v", ch.Participants)
	}
	// the stored channel name is never the display name of a DM
	if ch.DisplayName() != "ferris" {
		t.Errorf("DisplayName = %q", ch.DisplayName())
	}
	if ch.Persistence != types.PersistDuration(time.Hour) {
		t.Errorf("persistence = %+v", ch.Persistence)
	}
}

func TestChannelService_GetGroup(t *testing.T) {
	b := channelBackend(t)
	client, stop := b.start(t)
	defer stop()

	svc := NewChannelService(client, newUserService(context.Background(), client), testSelf)
	ch, err := svc.Get(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if ch.IsDM() {
		t.Fatal("expected a group channel")
	}
	users := ch.AllUsers()
	if len(users) != 2 || users[0].UUID != testOwner {
		t.Errorf("AllUsers = %+v, owner must come first", users)
	}
	if len(ch.Messages) != 1 || ch.Messages[0].SenderName != "ferris" {
		t.Errorf("messages = %+v", ch.Messages)
	}
}

func TestChannelService_List(t *testing.T) {
	b := channelBackend(t)
	b.mux.HandleFunc("GET /channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []string{"dm1", "g1"})
	})
	client, stop := b.start(t)
	defer stop()

	svc := NewChannelService(client, newUserService(context.Background(), client), testSelf)
	channels, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 2 || channels[0].ID != "dm1" || channels[1].ID != "g1" {
		t.Errorf("channels = %+v", channels)
	}
}

func TestChannelService_CreateValidatesPersistence(t *testing.T) {
	b := channelBackend(t)
	b.mux.HandleFunc("POST /channels", func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid persistence must be rejected before any request is sent")
	})
	client, stop := b.start(t)
	defer stop()

	svc := NewChannelService(client, newUserService(context.Background(), client), testSelf)
	_, err := svc.CreateGroup(context.Background(), "bad", types.PersistCount(-1), nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestChannelService_SendMessage(t *testing.T) {
	b := channelBackend(t)
	b.mux.HandleFunc("POST /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		// the echo carries no channel_id, like the live backend
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        "m9",
			"sender":    testSelf,
			"content":   "hi",
			"timestamp": "2024-06-01T10:00:00Z",
		})
	})
	client, stop := b.start(t)
	defer stop()

	svc := NewChannelService(client, newUserService(context.Background(), client), testSelf)
	msg, err := svc.SendMessage(context.Background(), "g1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m9" {
		t.Errorf("ID = %q", msg.ID)
	}
	// the echoed message must route back to the channel it was sent to
	if msg.ChannelID != "g1" {
		t.Errorf("ChannelID = %q, want g1", msg.ChannelID)
	}
}

func TestChannelService_MessagesBefore(t *testing.T) {
	b := channelBackend(t)
	var gotBefore string
	b.mux.HandleFunc("GET /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		gotBefore = r.URL.Query().Get("before")
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "m2", "sender": testFriend, "content": "later", "timestamp": "2024-06-01T09:00:00Z"},
			{"id": "m1", "sender": testFriend, "content": "earlier", "timestamp": "2024-06-01T08:00:00Z"},
		})
	})
	client, stop := b.start(t)
	defer stop()

	svc := NewChannelService(client, newUserService(context.Background(), client), testSelf)
	before := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	msgs, err := svc.MessagesBefore(context.Background(), "g1", before, 0)
	if err != nil {
		t.Fatal(err)
	}
	if gotBefore != "2024-06-01T10:00:00Z" {
		t.Errorf("before query = %q", gotBefore)
	}
	// results come back sorted ascending regardless of wire order
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages = %+v", msgs)
	}
}
