package ui

import "github.com/desertthunder/vgen/internal/shared"

// ChannelNotifier queues notifications for the status line.
//
// Notify never blocks; a full queue drops the newest notification.
type ChannelNotifier struct {
	ch chan shared.Notification
}

// NewChannelNotifier creates a notifier buffering up to size notifications.
func NewChannelNotifier(size int) *ChannelNotifier {
	if size <= 0 {
		size = 16
	}
	return &ChannelNotifier{ch: make(chan shared.Notification, size)}
}

func (n *ChannelNotifier) Notify(note shared.Notification) {
	select {
	case n.ch <- note:
	default:
	}
}

// Notifications returns the receive side of the queue.
func (n *ChannelNotifier) Notifications() <-chan shared.Notification {
	return n.ch
}
