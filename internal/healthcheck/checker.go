package healthcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe checks one dependency. A nil error means healthy.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

// ProbeFunc adapts a ping function to a Probe
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string {
	return p.ProbeName
}

func (p ProbeFunc) Check(ctx context.Context) error {
	return p.Fn(ctx)
}

// Checker probes the collector's dependencies and keeps their last status
type Checker struct {
	mu          sync.RWMutex
	probes      []Probe
	status      map[string]*Status
	timeout     time.Duration
	maxFailures int
	logger      *zap.Logger
}

// Holds health checker configuration
type Config struct {
	Timeout     time.Duration // Per-probe timeout (default: 2s)
	MaxFailures int           // Failures before marking unhealthy (default: 1)
}

func NewChecker(cfg Config, logger *zap.Logger, probes ...Probe) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	checker := &Checker{
		probes:      probes,
		status:      make(map[string]*Status),
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		logger:      logger,
	}

	for _, p := range probes {
		checker.status[p.Name()] = &Status{
			Target:    p.Name(),
			IsHealthy: true, // Assume healthy initially
		}
	}

	return checker
}

// Runs every probe once. It matches scheduler.Task's function signature and
// returns an error naming the unhealthy dependencies.
func (c *Checker) CheckAll(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, p := range c.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			c.checkProbe(ctx, p)
		}(p)
	}
	wg.Wait()

	var failing []string
	for _, s := range c.GetAllStatus() {
		if !s.IsHealthy {
			failing = append(failing, s.Target)
		}
	}
	if len(failing) > 0 {
		return fmt.Errorf("unhealthy dependencies: %v", failing)
	}

	return nil
}

func (c *Checker) checkProbe(ctx context.Context, p Probe) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		c.recordFailure(p.Name(), err)
		return
	}
	c.recordSuccess(p.Name())
}

func (c *Checker) recordSuccess(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[target]
	status.LastCheck = time.Now()
	status.LastSuccess = status.LastCheck
	status.FailureCount = 0
	status.LastError = ""

	if !status.IsHealthy {
		c.logger.Info("Dependency is now healthy", zap.String("target", target))
		status.IsHealthy = true
	}
}

func (c *Checker) recordFailure(target string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[target]
	status.LastCheck = time.Now()
	status.LastFailure = status.LastCheck
	status.FailureCount++
	status.LastError = err.Error()

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.logger.Warn("Dependency is now unhealthy",
			zap.String("target", target),
			zap.Int("failures", status.FailureCount),
			zap.Error(err),
		)
		status.IsHealthy = false
	}
}

// Return the health status of a specific dependency
func (c *Checker) GetStatus(target string) *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status, exists := c.status[target]; exists {
		statusCopy := *status
		return &statusCopy
	}

	return nil
}

// Returns health status of all dependencies
func (c *Checker) GetAllStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]*Status, len(c.status))
	for target, status := range c.status {
		statusCopy := *status
		statusMap[target] = &statusCopy
	}

	return statusMap
}

func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthy := 0
	for _, s := range c.status {
		if s.IsHealthy {
			healthy++
		}
	}

	if len(c.status) > 0 && healthy == 0 {
		return Unhealthy
	}
	if healthy < len(c.status) {
		return Degraded
	}

	return Healthy
}
