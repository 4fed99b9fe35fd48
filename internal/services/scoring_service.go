package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScoringService manages named points schedules. The "current" profile is
// the one consulted when a report is approved.
type ScoringService struct {
	db *gorm.DB
}

func NewScoringService(db *gorm.DB) *ScoringService {
	return &ScoringService{db: db}
}

// Current returns the active profile. When nothing has been saved yet the
// built-in defaults are returned with Version 0.
func (s *ScoringService) Current(ctx context.Context) (*models.ScoringProfile, error) {
	var p models.ScoringProfile
	err := s.db.WithContext(ctx).First(&p, "name = ?", models.CurrentScoringProfile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := scoring.DefaultConfig()
		return &models.ScoringProfile{
			Name:          models.CurrentScoringProfile,
			Tiers:         datatypes.JSONSlice[int](def.Tiers),
			DefaultPoints: def.DefaultPoints,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring config: %w", err)
	}
	return &p, nil
}

// CurrentConfig is Current reduced to the policy inputs.
func (s *ScoringService) CurrentConfig(ctx context.Context) (scoring.Config, error) {
	return loadScoringConfig(s.db.WithContext(ctx))
}

func (s *ScoringService) SaveCurrent(ctx context.Context, cfg scoring.Config, by string) (*models.ScoringProfile, error) {
	if err := scoring.Validate(cfg); err != nil {
		return nil, err
	}
	var saved *models.ScoringProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, err = upsertProfile(tx, models.CurrentScoringProfile, cfg, by)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("scoring config updated", "version", saved.Version, "updated_by", by, "tiers", cfg.Tiers)
	return saved, nil
}

// SaveProfile stores a named profile without activating it.
func (s *ScoringService) SaveProfile(ctx context.Context, name string, cfg scoring.Config, by string) (*models.ScoringProfile, error) {
	if name == models.CurrentScoringProfile {
		return nil, ErrReservedProfile
	}
	if err := scoring.Validate(cfg); err != nil {
		return nil, err
	}
	var saved *models.ScoringProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, err = upsertProfile(tx, name, cfg, by)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Promote copies a named profile into "current".
func (s *ScoringService) Promote(ctx context.Context, name, by string) (*models.ScoringProfile, error) {
	if name == models.CurrentScoringProfile {
		return nil, ErrReservedProfile
	}
	var saved *models.ScoringProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src models.ScoringProfile
		if err := tx.First(&src, "name = ?", name).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("failed to load profile: %w", err)
		}
		var err error
		saved, err = upsertProfile(tx, models.CurrentScoringProfile, profileConfig(&src), by)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("scoring profile promoted", "profile", name, "version", saved.Version, "updated_by", by)
	return saved, nil
}

func (s *ScoringService) Profiles(ctx context.Context) ([]models.ScoringProfile, error) {
	var profiles []models.ScoringProfile
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func upsertProfile(tx *gorm.DB, name string, cfg scoring.Config, by string) (*models.ScoringProfile, error) {
	cfg = cfg.Clone()

	var p models.ScoringProfile
	err := tx.First(&p, "name = ?", name).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p = models.ScoringProfile{
			Name:          name,
			Tiers:         datatypes.JSONSlice[int](cfg.Tiers),
			DefaultPoints: cfg.DefaultPoints,
			Version:       1,
			UpdatedBy:     by,
		}
		if err := tx.Create(&p).Error; err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load profile: %w", err)
	default:
		p.Tiers = datatypes.JSONSlice[int](cfg.Tiers)
		p.DefaultPoints = cfg.DefaultPoints
		p.Version++
		p.UpdatedBy = by
		if err := tx.Save(&p).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	return &p, nil
}

// loadScoringConfig reads "current" through tx so a review sees the config
// inside its own transaction.
func loadScoringConfig(tx *gorm.DB) (scoring.Config, error) {
	var p models.ScoringProfile
	err := tx.First(&p, "name = ?", models.CurrentScoringProfile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return scoring.DefaultConfig(), nil
	}
	if err != nil {
		return scoring.Config{}, fmt.Errorf("failed to load scoring config: %w", err)
	}
	return profileConfig(&p), nil
}

func profileConfig(p *models.ScoringProfile) scoring.Config {
	return scoring.Config{Tiers: []int(p.Tiers), DefaultPoints: p.DefaultPoints}.Clone()
}
