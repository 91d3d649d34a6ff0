// Package eventbus provides an in-process publish/subscribe bus. Publishing
// never blocks: a subscriber whose buffer is full misses the event.
package eventbus

// Bus is a publish/subscribe bus for events of type T.
type Bus[T any] interface {
	Publish(T)
	Subscribe() <-chan T
	Unsubscribe(<-chan T)
	Close()
}

// Publisher is the publishing half of a Bus.
type Publisher[T any] interface {
	Publish(T)
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 8
