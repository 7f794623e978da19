package consumer

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects what happens to a message whose handler keeps failing.
type Mode string

const (
	// ModeAck logs the failure and commits the message.
	ModeAck Mode = "ack"
	// ModeRetry re-invokes the handler with backoff, then commits.
	ModeRetry Mode = "retry"
	// ModeDeadLetter retries like ModeRetry, then hands the message to the dead-letter sink before committing.
	ModeDeadLetter Mode = "dead_letter"
)

// ParseMode validates a configured mode name.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(raw); m {
	case ModeAck, ModeRetry, ModeDeadLetter:
		return m, nil
	}
	return "", fmt.Errorf("unknown disposition mode %q (want ack, retry or dead_letter)", raw)
}

// Disposition governs redelivery of failed messages.
type Disposition struct {
	Mode            Mode
	MaxRedeliveries int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

// DefaultDisposition acknowledges failures without retrying.
var DefaultDisposition = Disposition{Mode: ModeAck, MaxRedeliveries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// Validate rejects unusable dispositions.
func (d Disposition) Validate() error {
	if _, err := ParseMode(string(d.Mode)); err != nil {
		return err
	}
	if d.MaxRedeliveries < 0 {
		return errors.New("max redeliveries must be >= 0")
	}
	if d.Mode != ModeAck && (d.BaseDelay <= 0 || d.MaxDelay < d.BaseDelay) {
		return errors.New("retry delays must satisfy 0 < base <= max")
	}
	return nil
}

// Delay returns the wait before redelivery n (1-based): BaseDelay·2^(n-1), capped at MaxDelay.
func (d Disposition) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := d.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= d.MaxDelay {
			return d.MaxDelay
		}
	}
	if delay > d.MaxDelay {
		return d.MaxDelay
	}
	return delay
}

// redeliveries is the number of extra handler invocations the mode allows.
func (d Disposition) redeliveries() int {
	if d.Mode == ModeAck {
		return 0
	}
	return d.MaxRedeliveries
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with Permanent or is an invalid message.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrInvalidMessage)
}
