package services

import "errors"

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrUserNotFound       = errors.New("user not found")

	ErrInvalidDecision = errors.New("decision must be approved or rejected")
	ErrInvalidReport   = errors.New("invalid report")
	ErrReportNotFound  = errors.New("report not found")
	ErrAlreadyReviewed = errors.New("report has already been reviewed")

	ErrProfileNotFound = errors.New("scoring profile not found")
	ErrReservedProfile = errors.New("scoring profile name is reserved")

	ErrNotificationNotFound = errors.New("notification not found")
)
