// Package eventbus is a typed in-process publish/subscribe bus used to fan
// application events out to independent consumers.
package eventbus

import (
	"fmt"

	"github.com/colivhub/colivrt/internal/relay"

	"github.com/rs/zerolog/log"
)

// Bus is owned by the application shell and shared by reference.
type Bus struct {
	relay *relay.Relay
}

func New(opts ...relay.Option) *Bus {
	return &Bus{relay: relay.New(opts...)}
}

// Topic binds a topic name to its payload type.
type Topic[T any] struct {
	name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() string {
	return t.name
}

// Subscription is returned by Subscribe and used to unsubscribe.
type Subscription struct {
	topic string
	id    relay.ListenerID
}

// Subscribe registers fn for topic. Subscribers are called synchronously in
// subscription order. Payloads of another type published under the same name
// are skipped.
func Subscribe[T any](b *Bus, topic Topic[T], fn func(T)) Subscription {
	id := b.relay.On(topic.name, func(data any) {
		v, ok := data.(T)
		if !ok && data != nil {
			var want T
			log.Error().Str("topic", topic.name).Str("type", fmt.Sprintf("%T", data)).
				Str("expected", fmt.Sprintf("%T", want)).Msg("event payload type mismatch")
			return
		}
		fn(v)
	})
	return Subscription{topic: topic.name, id: id}
}

// Publish delivers v to every subscriber of topic.
func Publish[T any](b *Bus, topic Topic[T], v T) {
	b.relay.Emit(topic.name, v)
}

// Unsubscribe removes a subscription. Unknown or zero subscriptions are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	if s.id == 0 {
		return
	}
	b.relay.Off(s.topic, s.id)
}

// Subscribers returns the number of subscribers of a topic name.
func (b *Bus) Subscribers(topic string) int {
	return b.relay.Len(topic)
}
