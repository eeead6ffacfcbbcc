package bus

import "context"

// Bus is a named multi-publisher multi-subscriber channel substrate visible
// to every relay instance in a deployment, including the publisher itself:
// neither implementation excludes a publisher from its own channel's
// deliveries. Handlers that only want messages meant for other instances
// (or meant for them specifically) must filter with TargetsInstance or an
// equivalent self-origin check.
type Bus interface {
	// Publish sends env on the channel named by env.Channel.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers handler for every future message published on
	// channel (by any instance). It returns an Unsubscribe func. handler is
	// invoked from a dedicated goroutine per channel subscription and must
	// not block indefinitely.
	Subscribe(ctx context.Context, channel string, handler func(Envelope)) (Unsubscribe, error)

	// Close releases all subscriptions and underlying connections.
	Close() error
}

type Unsubscribe func()

// TargetsInstance reports whether env should be acted on by instanceID: a
// message with no TargetInstanceID is meant for everyone; a targeted
// message must be ignored by non-matching receivers, including the
// publisher when it receives its own publish back. This filtering happens
// entirely in the consumer — the bus transport does no instance-aware
// routing of its own.
func TargetsInstance(env Envelope, instanceID string) bool {
	return env.TargetInstanceID == "" || env.TargetInstanceID == instanceID
}
