// Package memory keeps run notifications in process. It backs dry runs of
// the publish command and the publish tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded notification.
type Message struct {
	Kind    string
	Payload any
}

// Publisher appends every notification to an in-memory log.
type Publisher struct {
	mu      sync.RWMutex
	log     []Message
	failErr error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. A nil err clears it.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
}

// Publish records the notification and returns its position as the message ID.
func (p *Publisher) Publish(ctx context.Context, kind string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return "", p.failErr
	}
	p.log = append(p.log, Message{Kind: kind, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.log)), nil
}

// Messages returns a copy of the log in publish order.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.log...)
}

// Last returns the most recent notification of the given kind.
func (p *Publisher) Last(kind string) (Message, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := len(p.log) - 1; i >= 0; i-- {
		if p.log[i].Kind == kind {
			return p.log[i], true
		}
	}
	return Message{}, false
}
