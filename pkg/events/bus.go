package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

const DEFAULT_BUFFER_SIZE = 64

// HandlerFunc consumes one event of a subject.
type HandlerFunc[T any] func(ctx context.Context, event T) error

// ErrorReporter receives every error returned, or panic raised, by a handler.
type ErrorReporter func(tag string, err error)

// Subscription is one receiver of a subject. C is never closed, Done is closed on unsubscribe.
type Subscription[T any] struct {
	C    <-chan T
	ch   chan T
	done chan struct{}
	once sync.Once
	drop func()
}

func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		if s.drop != nil {
			s.drop()
		}
	})
}

// Subject is an in-process typed publish/subscribe channel for one event kind.
// Every current subscriber receives every published event. Nothing is persisted.
type Subject[T any] struct {
	name        string
	bufferSize  int
	mutex       sync.RWMutex
	nextId      uint64
	subscribers map[uint64]*Subscription[T]
	closed      bool
}

func NewSubject[T any](name string, bufferSize int) *Subject[T] {
	if bufferSize <= 0 {
		bufferSize = DEFAULT_BUFFER_SIZE
	}
	return &Subject[T]{
		name:        name,
		bufferSize:  bufferSize,
		subscribers: make(map[uint64]*Subscription[T]),
	}
}

func (s *Subject[T]) Name() string {
	return s.name
}

// Publish delivers the event to all current subscribers.
// It waits while a subscriber's buffer is full, unless that subscriber leaves.
func (s *Subject[T]) Publish(event T) {
	s.mutex.RLock()
	if s.closed {
		s.mutex.RUnlock()
		log.Warn().Str("subject", s.name).Msg("[EventBus] [Publish] subject is closed, event dropped")
		return
	}
	subscribers := make([]*Subscription[T], 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subscribers = append(subscribers, sub)
	}
	s.mutex.RUnlock()
	for _, sub := range subscribers {
		select {
		case sub.ch <- event:
		case <-sub.done:
		}
	}
}

func (s *Subject[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, s.bufferSize)
	sub := &Subscription[T]{C: ch, ch: ch, done: make(chan struct{})}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		close(sub.done)
		return sub
	}
	id := s.nextId
	s.nextId++
	s.subscribers[id] = sub
	sub.drop = func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.subscribers, id)
	}
	return sub
}

func (s *Subject[T]) SubscriberCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.subscribers)
}

// Handle subscribes fn and runs it as an independent task per event until ctx is done.
// Errors and panics are passed to report, they never reach sibling subscribers.
func (s *Subject[T]) Handle(ctx context.Context, tag string, fn HandlerFunc[T], report ErrorReporter) {
	sub := s.Subscribe()
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case event := <-sub.C:
				go runHandler(ctx, tag, fn, event, report)
			}
		}
	}()
}

func runHandler[T any](ctx context.Context, tag string, fn HandlerFunc[T], event T, report ErrorReporter) {
	defer func() {
		if r := recover(); r != nil {
			report(tag, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(ctx, event); err != nil {
		report(tag, err)
	}
}

// Close detaches all subscribers. Later publishes are dropped.
func (s *Subject[T]) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	subscribers := s.subscribers
	s.subscribers = make(map[uint64]*Subscription[T])
	s.mutex.Unlock()
	for _, sub := range subscribers {
		sub.once.Do(func() { close(sub.done) })
	}
}
