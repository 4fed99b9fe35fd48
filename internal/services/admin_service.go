package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidRole = errors.New("role must be admin or moderator")

// AdminService reads and seeds the admins table. The API only reads it;
// grants come from rumorctl.
type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// Lookup returns the admin row for userID, or nil when the user has none.
func (s *AdminService) Lookup(ctx context.Context, userID uuid.UUID) (*models.Admin, error) {
	var a models.Admin
	err := s.db.WithContext(ctx).First(&a, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	return &a, nil
}

// Grant gives review rights to the registered user with email.
func (s *AdminService) Grant(ctx context.Context, email, role string, permissions []string) (*models.Admin, error) {
	if role != models.AdminRoleAdmin && role != models.AdminRoleModerator {
		return nil, ErrInvalidRole
	}
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("email = ?", normalizeEmail(email)).Order("created_at ASC").First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	a := models.Admin{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        role,
		Permissions: datatypes.JSONSlice[string](permissions),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "role", "permissions", "updated_at"}),
	}).Create(&a).Error
	if err != nil {
		return nil, fmt.Errorf("failed to grant admin: %w", err)
	}

	slog.Info("admin granted", "user_id", user.ID.String(), "email", user.Email, "role", role)
	return &a, nil
}
