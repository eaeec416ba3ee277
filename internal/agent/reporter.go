// Package agent is the reporting side of loadmon. It runs on each monitored
// node, samples its load and posts a sealed envelope to the collector on a
// fixed interval. Failed posts are logged and the next tick sends fresh data;
// there is no retry or backoff.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aman-churiwal/loadmon/internal/envelope"
	"go.uber.org/zap"
)

// Returns the node's current load as a percentage in [0, 100]
type LoadSampler interface {
	Sample(ctx context.Context) (int, error)
}

type Sealer interface {
	Seal(rec envelope.Record) (string, error)
}

type Config struct {
	ServerID     int
	CollectorURL string
	Interval     time.Duration // Default: 5s
	Timeout      time.Duration // Default: 10s
}

// Reporter sends periodic load reports to the collector.
type Reporter struct {
	serverID   int
	endpoint   string
	interval   time.Duration
	sampler    LoadSampler
	sealer     Sealer
	httpClient *http.Client
	clock      func() time.Time
	logger     *zap.Logger
}

func NewReporter(cfg Config, sampler LoadSampler, sealer Sealer, logger *zap.Logger) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reporter{
		serverID: cfg.ServerID,
		endpoint: cfg.CollectorURL,
		interval: cfg.Interval,
		sampler:  sampler,
		sealer:   sealer,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		clock:  time.Now,
		logger: logger,
	}
}

// Start reports immediately and then on every interval.
// It blocks until the context is cancelled.
func (r *Reporter) Start(ctx context.Context) error {
	r.report(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	if err := r.SendOnce(ctx); err != nil {
		r.logger.Warn("Load report failed", zap.Int("server_id", r.serverID), zap.Error(err))
	}
}

// SendOnce samples, seals and posts a single report
func (r *Reporter) SendOnce(ctx context.Context) error {
	load, err := r.sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample load: %w", err)
	}

	sealed, err := r.sealer.Seal(envelope.NewRecord(r.serverID, load, r.clock()))
	if err != nil {
		return fmt.Errorf("failed to seal report: %w", err)
	}

	body, err := json.Marshal(map[string]string{"data": sealed})
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	r.logger.Debug("Load reported", zap.Int("server_id", r.serverID), zap.Int("load", load))
	return nil
}

func (r *Reporter) Endpoint() string {
	return r.endpoint
}

func (r *Reporter) Interval() time.Duration {
	return r.interval
}
