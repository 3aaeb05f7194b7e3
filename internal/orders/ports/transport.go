package ports

import "context"

// Publisher writes keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}
