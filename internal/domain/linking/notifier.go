package linking

import "context"

// Notifier delivers a one-way signal when a linking session reaches a
// terminal state. Implemented by the Firebase FCM client in the
// infrastructure layer. A nil Notifier disables notifications.
type Notifier interface {
	Send(ctx context.Context, title, body string, data map[string]string) error
}
