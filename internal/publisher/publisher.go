// Package publisher declares the completion message contract. The
// subpackages provide the Pub/Sub implementation and an in-memory one
// for tests and development.
package publisher

import "context"

// Publisher sends run and category completion messages. Payloads
// implementing MessageAttributes get their attributes attached where the
// transport supports them.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}
