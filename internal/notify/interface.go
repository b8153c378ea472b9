package notify

import "context"

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Notify(ctx context.Context, eventType, message string) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }
