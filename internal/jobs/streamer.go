package jobs

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/logging"
)

// EventWriter is one push client.
type EventWriter interface {
	WriteEvent(ev events.Event) error
}

// Streamer relays a job's topic to push clients.
type Streamer struct {
	store  Store
	broker *events.Broker
	log    *logging.Logger
}

// NewStreamer creates a streamer.
func NewStreamer(store Store, broker *events.Broker, log *logging.Logger) *Streamer {
	return &Streamer{
		store:  store,
		broker: broker,
		log:    logging.OrNop(log).With("component", "streamer"),
	}
}

// Stream writes the events of jobID to w in emission order and always ends
// with a done event. A non-nil startErr means the job could not be created;
// it is reported as an error event. When the topic has already been swept,
// the stored record is replayed instead.
func (s *Streamer) Stream(ctx context.Context, w EventWriter, jobID uuid.UUID, startErr error) error {
	defer func() {
		if err := w.WriteEvent(events.Done()); err != nil {
			s.log.Debug("failed to write done event", "job_id", jobID, "error", err)
		}
	}()

	if startErr != nil {
		return w.WriteEvent(events.Error(startErr.Error()))
	}

	sub, ok := s.broker.Subscribe(jobID)
	if !ok {
		return s.replayStored(ctx, w, jobID)
	}

	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
	}
}

func (s *Streamer) replayStored(ctx context.Context, w EventWriter, jobID uuid.UUID) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return w.WriteEvent(events.Error(err.Error()))
	}
	out := []events.Event{events.Status(job.Status), events.Progress(job.Progress)}
	for _, line := range job.Log {
		out = append(out, events.Log(line))
	}
	if job.Error != nil {
		out = append(out, events.Error(*job.Error))
	}
	for _, ev := range out {
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
	}
	return nil
}
