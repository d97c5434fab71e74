package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ownspend/agent/internal/capture"
	"github.com/ownspend/agent/internal/gateway"
	"github.com/ownspend/agent/internal/store"
	"github.com/ownspend/agent/pkg/settings"
)

// bridge is the local HTTP surface that stands in for OS event delivery:
// the device (or a forwarder on it) POSTs raw SMS/notification payloads and
// the bridge hands them to the capture pipeline.
type bridge struct {
	pipeline *capture.Pipeline
	store    *store.Store
	settings *settings.Store
	logger   *slog.Logger
}

func newBridge(pipeline *capture.Pipeline, st *store.Store, se *settings.Store, logger *slog.Logger) *bridge {
	return &bridge{pipeline: pipeline, store: st, settings: se, logger: logger}
}

func (b *bridge) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /capture/sms", b.handleSMS)
	mux.HandleFunc("POST /capture/notification", b.handleNotification)
	mux.HandleFunc("POST /settings", b.handleSettings)
	mux.HandleFunc("GET /status", b.handleStatus)
	mux.HandleFunc("GET /healthz", b.handleHealth)
	return mux
}

type smsPayload struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

func (b *bridge) handleSMS(w http.ResponseWriter, r *http.Request) {
	var p smsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Accepted for processing; classification happens off this path and
	// may still silently reject the message.
	b.pipeline.HandleSMS(p.Sender, p.Body)
	w.WriteHeader(http.StatusAccepted)
}

type notificationPayload struct {
	Package string `json:"package"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	BigText string `json:"big_text"`
}

func (b *bridge) handleNotification(w http.ResponseWriter, r *http.Request) {
	var p notificationPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	b.pipeline.HandleNotification(p.Package, p.Title, p.Text, p.BigText)
	w.WriteHeader(http.StatusAccepted)
}

type settingsPayload struct {
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key"`
}

func (b *bridge) handleSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := b.settings.SetServer(p.ServerURL, p.APIKey); err != nil {
		b.logger.Error("failed to save settings", "error", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	PendingCount int   `json:"pending_count"`
	SyncedCount  int   `json:"synced_count"`
	LastSyncTime int64 `json:"last_sync_time"`
}

func (b *bridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := b.store.PendingCount(r.Context())
	if err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	synced, err := b.store.SyncedCount(r.Context())
	if err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusResponse{
		PendingCount: pending,
		SyncedCount:  synced,
		LastSyncTime: b.settings.Get().LastSyncTime,
	})
}

func (b *bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := b.settings.Get()
	if !st.Configured() {
		http.Error(w, "not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health, err := gateway.New(st.ServerURL, st.APIKey).Health(ctx)
	if err != nil {
		b.logger.Warn("server health check failed", "error", err)
		http.Error(w, "server unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, health)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
