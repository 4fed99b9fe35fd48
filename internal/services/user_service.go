package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// Ledger pages a user's points history, newest first.
func (s *UserService) Ledger(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointsLedgerEntry, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger: %w", err)
	}
	var entries []models.PointsLedgerEntry
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger: %w", err)
	}
	return entries, total, nil
}

// LedgerTotal sums a user's ledger. It matches total_points once every
// approval has committed.
func (s *UserService) LedgerTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	var sum int
	err := s.db.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return sum, nil
}

func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Select("id", "name", "total_points", "total_reports").
		Where("total_points > 0").
		Order("total_points DESC, total_reports DESC, id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	out := make([]dto.LeaderboardEntry, len(users))
	for i, u := range users {
		out[i] = dto.LeaderboardEntry{
			Rank:         i + 1,
			UserID:       u.ID,
			Name:         u.Name,
			TotalPoints:  u.TotalPoints,
			TotalReports: u.TotalReports,
		}
	}
	return out, nil
}
