// Package events defines the lifecycle-event notifier contract used to
// announce cache activity to the rest of the application.
//
// The notifier is an explicit dependency injected into the caching client,
// not an ambient event bus: whoever constructs the client decides where
// events go.
package events

import (
	"github.com/rs/zerolog"
)

// Recognized lifecycle event names.
const (
	// ResponseStaleRevalidating is dispatched when a stale response has
	// been served and a background revalidation is about to start.
	ResponseStaleRevalidating = "response-stale-revalidating"

	// ResponseRevalidated is dispatched after a background revalidation
	// completed and the store was updated.
	ResponseRevalidated = "response-revalidated"
)

// RevalidationPayload is the payload carried by revalidation events.
type RevalidationPayload struct {
	// URL is the cache key being revalidated.
	URL string `json:"url"`

	// Modified is true when the origin returned a changed response.
	// Only meaningful on ResponseRevalidated.
	Modified bool `json:"modified"`
}

// Notifier receives named lifecycle events.
type Notifier interface {
	Dispatch(event string, payload any)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(event string, payload any)

// Dispatch calls f(event, payload).
func (f NotifierFunc) Dispatch(event string, payload any) {
	f(event, payload)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// Dispatch does nothing.
func (NopNotifier) Dispatch(string, any) {}

// LogNotifier writes events to a structured logger. It is the default
// notifier when none is injected.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Dispatch logs the event at debug level.
func (n LogNotifier) Dispatch(event string, payload any) {
	n.Logger.Debug().
		Str("event", event).
		Interface("payload", payload).
		Msg("Cache lifecycle event")
}
