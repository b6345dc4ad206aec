package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer function to the Stream interface. The
// producer runs in its own goroutine and sends on an unbuffered channel, so
// every event it emits is observed by Recv before the stream can complete.
type eventStream struct {
	ch     chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	err       error
}

// newEventStream runs fn in a goroutine and exposes its events as a Stream.
// fn's return value becomes the Recv error after all events are consumed
// (nil maps to io.EOF). Closing the stream cancels fn's context and drains
// any events still in flight so the producer never blocks forever.
func newEventStream(parent context.Context, fn func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &eventStream{
		ch:     make(chan Event),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go func() {
		s.err = fn(ctx, s.ch)
		close(s.done)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	select {
	case event := <-s.ch:
		return event, nil
	case <-s.done:
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	}
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		go func() {
			for {
				select {
				case <-s.ch:
				case <-s.done:
					return
				}
			}
		}()
	})
	return nil
}
