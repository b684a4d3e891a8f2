// Package audit ships run lifecycle events to secondary destinations: a
// Kafka topic for live consumers and S3 for an archive of finished runs.
// The run store stays the system of record; these sinks are best effort.
package audit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optiforge/platform/optiforge/internal/models"
)

// Event is the envelope published for one appended audit event.
type Event struct {
	RunID         string            `json:"run_id"`
	Status        models.RunStatus  `json:"status"`
	At            time.Time         `json:"at"`
	Action        string            `json:"action"`
	Details       map[string]string `json:"details"`
	ProviderName  string            `json:"provider_name,omitempty"`
	ProviderModel string            `json:"provider_model,omitempty"`
}

// EventFrom wraps the last audit event of rec.
func EventFrom(rec models.RunRecord) (Event, bool) {
	last, ok := rec.LastEvent()
	if !ok {
		return Event{}, false
	}
	return Event{
		RunID:         rec.ID,
		Status:        rec.Status,
		At:            last.At,
		Action:        last.Action,
		Details:       last.Details,
		ProviderName:  rec.ProviderName,
		ProviderModel: rec.ProviderModel,
	}, true
}

type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Archiver stores a finished run and returns the object key it used.
type Archiver interface {
	ArchiveRun(ctx context.Context, rec models.RunRecord) (string, error)
}

// MultiSink publishes to every sink concurrently and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var g errgroup.Group
	errs := make([]error, len(m))
	for i, s := range m {
		g.Go(func() error {
			errs[i] = s.Publish(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
