// Package events is the in-process pub/sub bus connecting the log watcher,
// the aggregator and anything interested in published snapshots.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
)

// ErrClosed is returned when publishing or subscribing after Close
var ErrClosed = errors.New("event service closed")

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	closed      bool
	inflight    sync.WaitGroup
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// handlers returns the subscribers of an event type and registers n
// in-flight deliveries while still holding the lock, so Close can wait.
func (s *Service) handlers(eventType interfaces.EventType) ([]interfaces.EventHandler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	handlers := s.subscribers[eventType]
	s.inflight.Add(len(handlers))
	return handlers, nil
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers, err := s.handlers(event.Type)
	if err != nil {
		return err
	}

	if len(handlers) == 0 {
		s.logger.Trace().
			Str("event_type", string(event.Type)).
			Msg("No subscribers for event")
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		go func(h interfaces.EventHandler) {
			defer s.inflight.Done()
			_ = s.deliver(ctx, h, event)
		}(handler)
	}

	return nil
}

// PublishSync sends an event to all subscribers and waits for them
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers, err := s.handlers(event.Type)
	if err != nil {
		return err
	}

	if len(handlers) == 0 {
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event synchronously")

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))

	for i, handler := range handlers {
		wg.Add(1)
		go func(i int, h interfaces.EventHandler) {
			defer wg.Done()
			defer s.inflight.Done()
			errs[i] = s.deliver(ctx, h, event)
		}(i, handler)
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event handlers failed: %w", err)
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, h interfaces.EventHandler, event interfaces.Event) (err error) {
	defer common.Recover(s.logger, "event:"+string(event.Type))

	if err = h(ctx, event); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("Event handler failed")
	}
	return err
}

// Close drops all subscribers and waits for in-flight deliveries
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.mu.Unlock()

	s.inflight.Wait()
	s.logger.Debug().Msg("Event service closed")

	return nil
}

// Ensure interface compliance
var _ interfaces.EventService = (*Service)(nil)
