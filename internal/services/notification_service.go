package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/realtime"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationService serves a user's own notifications. Every operation is
// scoped to the recipient; another user's notification looks missing.
type NotificationService struct {
	db  *gorm.DB
	hub realtime.Hub
}

func NewNotificationService(db *gorm.DB, hub realtime.Hub) *NotificationService {
	return &NotificationService{db: db, hub: hub}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	var notes []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&notes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notes, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	s.touch(ctx, userID)
	return nil
}

// MarkAllRead returns the number of notifications it changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", res.Error)
	}
	s.touch(ctx, userID)
	return res.RowsAffected, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Subscribe streams notifications written for userID from now on.
func (s *NotificationService) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error) {
	if s.hub == nil {
		return nil, nil, errors.New("realtime hub not configured")
	}
	return s.hub.Subscribe(ctx, userID)
}

func (s *NotificationService) touch(ctx context.Context, userID uuid.UUID) {
	s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("last_active", time.Now().UTC())
}
