package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/ratelimit"
	"github.com/aman-churiwal/loadmon/internal/repository"
	"go.uber.org/zap"
)

const (
	MinNicknameLength = 3
	MaxNicknameLength = 80
)

type QuotaGate interface {
	Admit(ctx context.Context, address string) (ratelimit.Decision, error)
	Release(ctx context.Context, address string) error
}

type NodeFinder interface {
	FindAvailable(ctx context.Context, id uint) (*models.Node, error)
}

type RegistrationWriter interface {
	Create(ctx context.Context, reg *models.Registration) error
}

type RegistrationRequest struct {
	Address  string
	Nickname string
	NodeID   uint
}

type RegistrationService struct {
	quota         QuotaGate
	nodes         NodeFinder
	registrations RegistrationWriter
	logger        *zap.Logger
}

func NewRegistrationService(quota QuotaGate, nodes NodeFinder, registrations RegistrationWriter, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RegistrationService{
		quota:         quota,
		nodes:         nodes,
		registrations: registrations,
		logger:        logger,
	}
}

// Register counts the attempt against the caller's quota, then validates and
// stores it. An attempt that fails after admission gives its quota back, so
// only successful registrations count.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*models.Registration, error) {
	if _, err := s.quota.Admit(ctx, req.Address); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
			s.logger.Info("Registration rate limited", zap.String("address", req.Address))
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	reg, err := s.register(ctx, req)
	if err != nil {
		s.release(ctx, req.Address)
		return nil, err
	}

	s.logger.Info("Registration created",
		zap.Uint("registration_id", reg.ID),
		zap.Uint("node_id", reg.NodeID),
		zap.String("address", req.Address),
	)

	return reg, nil
}

func (s *RegistrationService) register(ctx context.Context, req RegistrationRequest) (*models.Registration, error) {
	nickname := strings.TrimSpace(req.Nickname)
	if n := utf8.RuneCountInString(nickname); n < MinNicknameLength || n > MaxNicknameLength {
		return nil, invalid(nil, "Nickname must be between %d and %d characters",
			MinNicknameLength, MaxNicknameLength)
	}

	node, err := s.nodes.FindAvailable(ctx, req.NodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if node == nil {
		return nil, invalid(repository.ErrNodeNotFound, "Selected server is not available")
	}

	reg := &models.Registration{
		RequestIP: req.Address,
		Nickname:  nickname,
		NodeID:    node.ID,
	}
	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return reg, nil
}

// Runs even when the request context is already cancelled
func (s *RegistrationService) release(ctx context.Context, address string) {
	if err := s.quota.Release(context.WithoutCancel(ctx), address); err != nil {
		s.logger.Warn("Failed to release quota",
			zap.String("address", address),
			zap.Error(err),
		)
	}
}
