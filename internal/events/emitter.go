// Package events emits tranche outcome reports to an external collector.
// The pipeline returns outcome and timing data as values; this package is
// the injected observability collaborator that ships them elsewhere.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds event emission configuration.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// TrancheReport describes the outcome of one tranche.
type TrancheReport struct {
	RunID      string    `json:"run_id"`
	Bucket     string    `json:"bucket"`
	Prefix     string    `json:"prefix"`
	Tranche    int       `json:"tranche"`
	Objects    int       `json:"objects"`
	Skipped    int       `json:"skipped"`
	Batches    int       `json:"batches"`
	Merged     int       `json:"merged"`
	Failed     int       `json:"failed"`
	Verdict    bool      `json:"verdict"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Emitter is the interface for tranche report emission.
type Emitter interface {
	EmitTranche(ctx context.Context, report TrancheReport) error
	Close() error
}

// NewEmitter creates an appropriate emitter based on configuration.
// Emission failures are the caller's to log; they never fail a tranche.
func NewEmitter(cfg Config) Emitter {
	log := slog.With("component", "events")
	if !cfg.Enabled || cfg.Endpoint == "" {
		log.Debug("event emission disabled, using no-op emitter")
		return &noopEmitter{}
	}
	log.Info("using HTTP emitter", "endpoint", cfg.Endpoint)
	return NewHTTPEmitter(cfg.Endpoint)
}

// noopEmitter discards all reports.
type noopEmitter struct{}

func (n *noopEmitter) EmitTranche(_ context.Context, _ TrancheReport) error { return nil }
func (n *noopEmitter) Close() error                                         { return nil }

// HTTPEmitter POSTs tranche reports as JSON to an HTTP endpoint.
type HTTPEmitter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEmitter creates a new HTTP emitter.
func NewHTTPEmitter(endpoint string) *HTTPEmitter {
	return &HTTPEmitter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// EmitTranche sends one tranche report to the configured endpoint.
func (e *HTTPEmitter) EmitTranche(ctx context.Context, report TrancheReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal tranche report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post tranche report: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tranche report rejected: %s", resp.Status)
	}
	return nil
}

// Close releases the underlying transport.
func (e *HTTPEmitter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
