package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/pkg/events"
	"github.com/servicehub/marketplace-backend/pkg/mailer"
)

type otpRecord struct {
	hash   string
	expiry time.Time
}

// memoryOTPStore records OTP state in memory
type memoryOTPStore struct {
	states  map[uuid.UUID]otpRecord
	cleared int
	setErr  error
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{states: map[uuid.UUID]otpRecord{}}
}

func (m *memoryOTPStore) SetOTP(_ context.Context, id uuid.UUID, hash string, expiry time.Time) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.states[id] = otpRecord{hash: hash, expiry: expiry}
	return nil
}

func (m *memoryOTPStore) ClearOTP(_ context.Context, id uuid.UUID) error {
	delete(m.states, id)
	m.cleared++
	return nil
}

// recordingSender captures outgoing mail
type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// recordingPublisher captures domain events
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
