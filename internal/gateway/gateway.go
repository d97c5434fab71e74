// Package gateway is the HTTP client for the remote ingest service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ownspend/agent/pkg/api"
)

// DeviceTimestampLayout is the wire format for event capture times.
const DeviceTimestampLayout = "2006-01-02T15:04:05"

// IngestRequest is the body for POST /api/events/ingest.
type IngestRequest struct {
	SourceType      string  `json:"source_type"`
	SourceSender    string  `json:"source_sender"`
	SourcePackage   *string `json:"source_package"`
	RawText         string  `json:"raw_text"`
	DeviceTimestamp string  `json:"device_timestamp"`
}

// IngestResponse is the server's per-event acceptance result.
type IngestResponse struct {
	Status        string  `json:"status"`
	EventID       *int64  `json:"event_id,omitempty"`
	TransactionID *string `json:"transaction_id,omitempty"`
	ParseStatus   *string `json:"parse_status,omitempty"`
	Message       *string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusError is a non-2xx response from the gateway. It is a per-item
// failure, distinct from transport errors.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Client talks to the remote ingest service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a gateway client for the given server.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewRequest builds the wire representation of one captured event. The
// device timestamp is the capture time rendered in device-local time.
func NewRequest(event *api.CapturedEvent) IngestRequest {
	req := IngestRequest{
		SourceType:      string(event.SourceType),
		SourceSender:    event.SourceSender,
		RawText:         event.RawText,
		DeviceTimestamp: event.ReceivedTime().Format(DeviceTimestampLayout),
	}
	if event.SourcePackage != "" {
		pkg := event.SourcePackage
		req.SourcePackage = &pkg
	}
	return req
}

// IngestEvent submits exactly one event. A non-2xx response is returned as
// a *StatusError; transport failures are returned as-is.
func (c *Client) IngestEvent(ctx context.Context, event IngestRequest) (*IngestResponse, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding ingest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events/ingest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding ingest response: %w", err)
	}
	return &out, nil
}

// Health probes the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &out, nil
}
