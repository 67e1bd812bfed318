package notify

import (
	"context"
	"fmt"
	"time"

	"calremind/internal/alarm"
)

// Default cap on a single delivery attempt so a wedged notification
// server cannot stall the scheduler loop.
const defaultDispatchDeadline = 10 * time.Second

// Dispatcher renders and delivers due alarms with a bounded deadline
// per attempt.
type Dispatcher struct {
	sink     Sink
	renderer *Renderer
	deadline time.Duration
}

// NewDispatcher creates a dispatcher delivering through sink.
func NewDispatcher(sink Sink, renderer *Renderer) *Dispatcher {
	return &Dispatcher{
		sink:     sink,
		renderer: renderer,
		deadline: defaultDispatchDeadline,
	}
}

// SetDeadline overrides the per-attempt delivery deadline.
func (d *Dispatcher) SetDeadline(deadline time.Duration) {
	d.deadline = deadline
}

// Dispatch delivers one alarm. late marks alarms dispatched noticeably
// after their due date; they are sent with critical urgency so they
// stand out. An error means the delivery outcome is unknown.
func (d *Dispatcher) Dispatch(ctx context.Context, a alarm.Alarm, late bool) error {
	title, body := d.renderer.Render(a)

	urgency := UrgencyNormal
	if late {
		urgency = UrgencyCritical
	}

	n := Notification{
		Title:   title,
		Body:    body,
		Urgency: urgency,
	}

	ctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.sink.Send(n)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("dispatch of %s failed: %w", a.Fingerprint, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch of %s timed out: %w", a.Fingerprint, ctx.Err())
	}
}

// Close releases the underlying sink.
func (d *Dispatcher) Close() error {
	return d.sink.Close()
}
