package protocol

import (
	"context"
	"reflect"
	"slices"
	"sync"
)

// Handler processes a structured message delivered on a channel.
//
// Returning an error, or panicking, is a handler fault: the remaining
// handlers still run, and a request that nobody answered gets an Error reply.
type Handler interface {
	HandleMessage(ctx context.Context, h *Handle) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, h *Handle) error

// HandleMessage implements Handler.
func (f HandlerFunc) HandleMessage(ctx context.Context, h *Handle) error {
	return f(ctx, h)
}

// PlainHandler receives wire strings that are not structured messages.
type PlainHandler func(text string)

// Subscription is returned by Subscribe and SubscribePlain. Unsubscribe is
// idempotent.
type Subscription struct {
	channel string
	once    sync.Once
	remove  func()
}

// Channel returns the channel id, or "" for a plain-text subscription.
func (s *Subscription) Channel() string {
	return s.channel
}

// Unsubscribe detaches the handler. Deliveries already in progress finish.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.remove)
}

type subscriber struct {
	handler Handler
	sub     *Subscription
}

type plainSubscriber struct {
	handler PlainHandler
	sub     *Subscription
}

// registry maps channel ids to subscribers. Slices are replaced rather than
// mutated so a snapshot taken under the controller lock stays valid while
// handlers run without it.
type registry struct {
	channels map[string][]*subscriber
	plain    []*plainSubscriber
}

func newRegistry() *registry {
	return &registry{
		channels: make(map[string][]*subscriber, 16),
	}
}

// add registers handler on channel. A pointer handler already registered on
// the channel is not added twice; its existing subscription is returned.
func (r *registry) add(channel string, handler Handler, remove func(*subscriber)) *Subscription {
	for _, s := range r.channels[channel] {
		if sameHandler(s.handler, handler) {
			return s.sub
		}
	}

	s := &subscriber{handler: handler}
	s.sub = &Subscription{channel: channel, remove: func() { remove(s) }}

	r.channels[channel] = append(slices.Clip(r.channels[channel]), s)

	return s.sub
}

func (r *registry) remove(channel string, s *subscriber) bool {
	subs := r.channels[channel]

	idx := slices.Index(subs, s)
	if idx < 0 {
		return false
	}

	if len(subs) == 1 {
		delete(r.channels, channel)

		return true
	}

	r.channels[channel] = slices.Delete(slices.Clone(subs), idx, idx+1)

	return true
}

func (r *registry) snapshot(channel string) []*subscriber {
	return r.channels[channel]
}

func (r *registry) addPlain(handler PlainHandler, remove func(*plainSubscriber)) *Subscription {
	s := &plainSubscriber{handler: handler}
	s.sub = &Subscription{remove: func() { remove(s) }}

	r.plain = append(slices.Clip(r.plain), s)

	return s.sub
}

func (r *registry) removePlain(s *plainSubscriber) bool {
	idx := slices.Index(r.plain, s)
	if idx < 0 {
		return false
	}

	r.plain = slices.Delete(slices.Clone(r.plain), idx, idx+1)

	return true
}

func (r *registry) plainSnapshot() []*plainSubscriber {
	return r.plain
}

func (r *registry) counts() (channels, subscriptions int) {
	for _, subs := range r.channels {
		subscriptions += len(subs)
	}

	return len(r.channels), subscriptions
}

// sameHandler reports whether a and b are the same pointer handler.
// Function handlers are never comparable and always register anew.
func sameHandler(a, b Handler) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == nil || ta != tb || ta.Kind() != reflect.Pointer {
		return false
	}

	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
