package firebase

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Client implements linking.Notifier using Firebase Cloud Messaging. The demo
// signals a single operator device, so the token is fixed at construction.
type Client struct {
	msgClient *messaging.Client
	token     string
}

// NewClient initializes a Firebase app and returns an FCM client bound to the
// given device token.
func NewClient(ctx context.Context, credentialsFile, token string) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient, token: token}, nil
}

// Send pushes a notification to the configured device token.
func (c *Client) Send(ctx context.Context, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Token: c.token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := c.msgClient.Send(ctx, msg); err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			log.Printf("FCM token rejected by provider: %v", err)
			return fmt.Errorf("invalid token: %w", err)
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	return nil
}
