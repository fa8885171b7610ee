package redisstore

import (
	"context"
	"fmt"
	"sync"

	"TileBoard/internal/protocol"
)

// Subscription is an active Pub/Sub subscription to one canvas's tile events.
type Subscription struct {
	events <-chan []byte
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns validated raw messages, ready to forward to clients. The
// channel is closed when the subscription is closed.
func (s *Subscription) Events() <-chan []byte {
	return s.events
}

// Errors returns messages that failed validation.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func (s *Store) publish(ctx context.Context, canvasID string, msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.eventsChannel(canvasID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Publish fans a realtime message out to every host subscribed to the canvas.
func (s *Store) Publish(ctx context.Context, canvasID string, msg any) error {
	return s.publish(ctx, canvasID, msg)
}

// Subscribe listens to a canvas's events. It returns once Redis has confirmed
// the subscription, so nothing published afterwards is missed.
//
// Delivery is at-most-once: a slow consumer may lose events.
func (s *Store) Subscribe(ctx context.Context, canvasID string) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, s.eventsChannel(canvasID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	eventsChan := make(chan []byte, 64)
	errorsChan := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				payload := []byte(msg.Payload)
				if _, err := protocol.Decode(payload); err != nil {
					select {
					case errorsChan <- fmt.Errorf("dropping canvas event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				select {
				case eventsChan <- payload:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: eventsChan, errors: errorsChan, cancel: cancel}, nil
}
