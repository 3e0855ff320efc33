// Package audittest provides an in-memory audit.Logger for tests.
package audittest

import (
	"context"
	"sync"

	"github.com/platinummonkey/authapi/pkg/audit"
)

// Recorder keeps every logged event in memory
type Recorder struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error {
	return nil
}

// Events returns a snapshot of the recorded events
func (r *Recorder) Events() []*audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.AuditEvent(nil), r.events...)
}

// Last returns the most recent event or nil
func (r *Recorder) Last() *audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}
