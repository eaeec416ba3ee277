package agent

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUSampler reports system-wide CPU utilisation averaged over Window
type CPUSampler struct {
	Window time.Duration
}

func NewCPUSampler() *CPUSampler {
	return &CPUSampler{Window: time.Second}
}

func (s *CPUSampler) Sample(ctx context.Context) (int, error) {
	percentages, err := cpu.PercentWithContext(ctx, s.Window, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, errors.New("no cpu statistics available")
	}

	return clampPercent(percentages[0]), nil
}

func clampPercent(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
