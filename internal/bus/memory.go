package bus

import "context"

// memoryBus is a trivial in-process no-op bus for single-instance
// deployments, where there is no other instance to converge with.
// Delivering to local subscribers other than the publisher would require
// loopback, which a single instance never needs: it is always both
// publisher and the only possible subscriber, and ownership of a tunnel on
// the sole instance is already known locally via the Active-Socket Table.
// Subscribing is still supported so call sites don't need a type switch,
// but nothing is ever delivered.
type memoryBus struct{}

// NewMemory returns a Bus suitable for a single relay instance with no
// Redis configured.
func NewMemory() Bus { return memoryBus{} }

func (memoryBus) Publish(ctx context.Context, env Envelope) error { return nil }

func (memoryBus) Subscribe(ctx context.Context, channel string, handler func(Envelope)) (Unsubscribe, error) {
	return func() {}, nil
}

func (memoryBus) Close() error { return nil }
