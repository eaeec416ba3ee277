package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/repository"
	"go.uber.org/zap"
)

const (
	MinLoad = 0
	MaxLoad = 100

	DefaultRecentWindow = 24 * time.Hour
)

type Opener interface {
	Open(envelope string) (envelope.Record, error)
}

type HistoryStore interface {
	Record(ctx context.Context, nodeID uint, value int, at time.Time) error
	Recent(ctx context.Context, nodeID uint, since time.Time) ([]models.LoadSample, error)
}

type CollectorConfig struct {
	// Future timestamps further ahead than this are clamped to receipt time.
	// Zero keeps client timestamps as sent.
	MaxClockSkew time.Duration
	Clock        func() time.Time
}

// Collector turns sealed telemetry envelopes into stored samples.
type Collector struct {
	opener  Opener
	history HistoryStore
	maxSkew time.Duration
	clock   func() time.Time
	logger  *zap.Logger
}

// One point of a node's load series
type LoadPoint struct {
	Time  time.Time `json:"time"`
	Value int       `json:"value"`
}

func NewCollector(opener Opener, history HistoryStore, cfg CollectorConfig, logger *zap.Logger) *Collector {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Collector{
		opener:  opener,
		history: history,
		maxSkew: cfg.MaxClockSkew,
		clock:   cfg.Clock,
		logger:  logger,
	}
}

// Opens, validates and stores one envelope. Either the current load and the
// sample are both written or neither is.
func (c *Collector) Submit(ctx context.Context, sealed string) (envelope.Record, error) {
	rec, err := c.opener.Open(sealed)
	if err != nil {
		return envelope.Record{}, err
	}

	if rec.ServerID <= 0 {
		return rec, invalid(nil, "Invalid server id %d", rec.ServerID)
	}
	if rec.Load < MinLoad || rec.Load > MaxLoad {
		return rec, invalid(nil, "Load %d is outside %d-%d", rec.Load, MinLoad, MaxLoad)
	}

	at, err := rec.Time()
	if err != nil {
		return rec, invalid(err, "Invalid timestamp")
	}
	at = c.clamp(at)

	err = c.history.Record(ctx, uint(rec.ServerID), rec.Load, at)
	if errors.Is(err, repository.ErrNodeNotFound) {
		return rec, invalid(err, "Unknown server id %d", rec.ServerID)
	}
	if err != nil {
		c.logger.Error("Failed to store load sample",
			zap.Int("server_id", rec.ServerID),
			zap.Error(err),
		)
		return rec, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	c.logger.Debug("Load sample stored",
		zap.Int("server_id", rec.ServerID),
		zap.Int("load", rec.Load),
		zap.Time("recorded_at", at),
	)

	return rec, nil
}

// Returns the node's retained samples within window, oldest first
func (c *Collector) Recent(ctx context.Context, nodeID uint, window time.Duration) ([]LoadPoint, error) {
	if window <= 0 {
		window = DefaultRecentWindow
	}

	samples, err := c.history.Recent(ctx, nodeID, c.clock().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	points := make([]LoadPoint, 0, len(samples))
	for _, s := range samples {
		points = append(points, LoadPoint{Time: s.RecordedAt(), Value: s.LoadValue})
	}

	return points, nil
}

func (c *Collector) clamp(at time.Time) time.Time {
	if c.maxSkew <= 0 {
		return at
	}

	now := c.clock().UTC()
	if at.Sub(now) > c.maxSkew {
		c.logger.Warn("Clamping future timestamp", zap.Time("timestamp", at), zap.Time("now", now))
		return now
	}

	return at
}
