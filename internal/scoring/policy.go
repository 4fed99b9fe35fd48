// Package scoring maps a report's submission rank to the points it earns.
package scoring

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid scoring config")

// Config is a tiered points schedule. Tiers[0] goes to the first report on a
// rumor URL, Tiers[1] to the second, and DefaultPoints to every rank past
// the end of Tiers.
type Config struct {
	Tiers         []int `json:"tiers" yaml:"tiers"`
	DefaultPoints int   `json:"default_points" yaml:"default_points"`
}

// DefaultConfig is used when no current profile has been saved.
func DefaultConfig() Config {
	return Config{
		Tiers:         []int{50, 40, 30, 20, 15},
		DefaultPoints: 10,
	}
}

// PointsForRank returns the points for a zero-based rank. It never fails;
// configs are checked by Validate before they are stored.
func PointsForRank(rank int, cfg Config) int {
	if rank >= 0 && rank < len(cfg.Tiers) {
		return cfg.Tiers[rank]
	}
	return cfg.DefaultPoints
}

func Validate(cfg Config) error {
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("%w: tiers must not be empty", ErrInvalidConfig)
	}
	for i, p := range cfg.Tiers {
		if p < 0 {
			return fmt.Errorf("%w: tier %d is negative (%d)", ErrInvalidConfig, i, p)
		}
	}
	if cfg.DefaultPoints < 0 {
		return fmt.Errorf("%w: default_points is negative (%d)", ErrInvalidConfig, cfg.DefaultPoints)
	}
	return nil
}

// Clone returns a copy that does not share the Tiers backing array.
func (c Config) Clone() Config {
	tiers := make([]int, len(c.Tiers))
	copy(tiers, c.Tiers)
	return Config{Tiers: tiers, DefaultPoints: c.DefaultPoints}
}
