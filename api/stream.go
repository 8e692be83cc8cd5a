package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/progress"
)

// Stream event names.
const (
	EventSnapshot = "snapshot"
	EventTerminal = "terminal"
)

// TerminalEvent is the payload of the last event on a stream.
type TerminalEvent struct {
	JobID  string                 `json:"jobId"`
	Status progress.SessionStatus `json:"status"`
	Error  string                 `json:"error,omitempty"`
}

// streamJob pushes one snapshot event per session mutation and ends with
// a terminal event once the job is completed or failed. Jobs that are
// already terminal get a snapshot rebuilt from the store.
func (s *server) streamJob(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	view, err := s.queue.Get(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	log := s.logger.With(zap.String("job_id", id))

	if view.Job.Status.IsTerminal() {
		_ = writeFinal(c.Writer, progress.FromHistory(view.Job, view.Progress))
		return
	}

	var updates <-chan progress.Snapshot
	if s.config.sessions != nil {
		// a job already past some stages starts from its stored history
		s.config.sessions.OpenSeeded(id, progress.FromHistory(view.Job, view.Progress))
		sink := progress.NewChannelSink(s.config.streamBuffer)
		subID, err := s.config.sessions.Subscribe(id, sink)
		if err != nil {
			log.Debug("stream subscribe failed", zap.Error(err))
		} else {
			defer s.config.sessions.Unsubscribe(id, subID)
			updates = sink.C()
		}
	}
	if updates == nil {
		if err := writeEvent(c.Writer, EventSnapshot, progress.FromHistory(view.Job, view.Progress)); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(s.config.heartbeat)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.config.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream client disconnected")
			return

		case snap, ok := <-updates:
			if !ok {
				// dropped as slow or swept; the store poll still ends the stream
				updates = nil
				continue
			}
			if snap.Terminal {
				_ = writeFinal(c.Writer, snap)
				return
			}
			if err := writeEvent(c.Writer, EventSnapshot, snap); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}

		case <-poll.C:
			view, err := s.queue.Get(ctx, id)
			if err != nil {
				log.Debug("stream poll failed", zap.Error(err))
				continue
			}
			if view.Job.Status.IsTerminal() {
				_ = writeFinal(c.Writer, progress.FromHistory(view.Job, view.Progress))
				return
			}

		case <-heartbeat.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				return
			}
		}
	}
}

func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeFinal writes the last snapshot followed by the terminal event.
func writeFinal(w gin.ResponseWriter, snap progress.Snapshot) error {
	if err := writeEvent(w, EventSnapshot, snap); err != nil {
		return err
	}
	return writeEvent(w, EventTerminal, TerminalEvent{
		JobID:  snap.SessionID,
		Status: snap.Status,
		Error:  snap.Error,
	})
}

func writeEvent(w gin.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeHeartbeat(w gin.ResponseWriter) error {
	if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}
