package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Messages holds the push notification copy for terminal linking outcomes.
type Messages struct {
	LinkComplete MessageText `json:"link_complete"`
	LinkFailed   MessageText `json:"link_failed"`
}

// Default returns the built-in notification copy.
func Default() *Messages {
	return &Messages{
		LinkComplete: MessageText{
			Title: "Bank account linked",
			Body:  "Your bank connection completed.",
		},
		LinkFailed: MessageText{
			Title: "Connection Failed",
			Body:  "The bank connection process failed.",
		},
	}
}

var (
	loaded   *Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notification copy from a JSON file and caches the result.
// An empty path returns the defaults. Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	if path == "" {
		return Default(), nil
	}
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		m := Default()
		if err := json.Unmarshal(data, m); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
			return
		}
		loaded = m
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return loaded, nil
}
