// Package realtime pushes notifications to subscribed users as they are
// written, replacing polling with a publish/subscribe contract.
package realtime

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
)

// Hub delivers notifications to live subscribers of a recipient.
//
// Subscribe returns a channel of notifications and an unsubscribe function
// that must be called on teardown; the channel is closed after unsubscribe
// or when ctx ends.
type Hub interface {
	Publish(ctx context.Context, n models.Notification) error
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error)
	Close() error
}

const subscriberBuffer = 32
