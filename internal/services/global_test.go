package services

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"palaver/internal/types"
)

func TestGlobalService_Get(t *testing.T) {
	b := newTestBackend(t)
	var calls atomic.Int64
	b.mux.HandleFunc("GET /global", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"total_players":  1200,
			"online_players": 34,
			"latest_version": "1.4.2",
			"notes":          "# maintenance window\ntonight",
		})
	})
	client, stop := b.start(t)
	defer stop()

	svc := NewGlobalService(client, 5*time.Minute)
	data, err := svc.Get(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if data.TotalPlayers != 1200 || data.OnlinePlayers != 34 {
		t.Errorf("data = %+v", data)
	}
	if data.LatestVersion != types.ParseSemVer("1.4.2") {
		t.Errorf("version = %v", data.LatestVersion)
	}
	if !data.UpdateAvailable(types.ParseSemVer("1.4.1")) {
		t.Error("1.4.2 should count as an update over 1.4.1")
	}
	if data.UpdateAvailable(types.ParseSemVer("1.4.2")) {
		t.Error("same version is not an update")
	}

	// within the TTL the second get is served from cache
	if _, err := svc.Get(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one backend call, got %d", calls.Load())
	}

	if _, err := svc.Get(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("force should bypass the TTL, got %d calls", calls.Load())
	}
}

func TestGlobalService_ErrorYieldsEmpty(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET /global", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"description": "oops"})
	})
	client, stop := b.start(t)
	defer stop()

	svc := NewGlobalService(client, time.Minute)
	data, err := svc.Get(context.Background(), false)
	if err == nil {
		t.Fatal("expected error")
	}
	if data != types.EmptyGlobalData {
		t.Errorf("expected EmptyGlobalData, got %+v", data)
	}
}
