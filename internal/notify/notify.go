// Package notify provides a small observer list. A panicking subscriber is
// recovered and logged so it can never abort the tick that published to it.
package notify

import "log/slog"

// List is an ordered set of subscribers for one kind of change.
type List[T any] struct {
	subs []func(T)
}

// Subscribe appends a listener. Listeners are invoked synchronously and in
// registration order.
func (l *List[T]) Subscribe(fn func(T)) {
	if fn == nil {
		return
	}
	l.subs = append(l.subs, fn)
}

// Publish delivers v to every subscriber, isolating panics per listener.
func (l *List[T]) Publish(v T) {
	for _, fn := range l.subs {
		deliver(fn, v)
	}
}

// Len reports the subscriber count.
func (l *List[T]) Len() int { return len(l.subs) }

func deliver[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("listener panicked", "panic", r)
		}
	}()
	fn(v)
}
