package dto

import "github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"

type NotificationListResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Unread        int64                 `json:"unread"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

type FanoutRetryResponse struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
}
