package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sseKeepalive        = 30 * time.Second
	sseProgressInterval = 250 * time.Millisecond
	sseRetryMillis      = 3000
)

// errStreamClosed means the client went away after the stream headers were
// sent. No status can be written at that point.
var errStreamClosed = errors.New("event stream closed")

// eventStream writes numbered Server-Sent Events to one client.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     uint64
}

func openEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	// The server-wide write timeout would cut the stream.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("clear write deadline: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis); err != nil {
		return nil, fmt.Errorf("%w: %v", errStreamClosed, err)
	}
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, nil
}

func (es *eventStream) send(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	es.seq++
	if _, err := fmt.Fprintf(es.w, "id: %d\nevent: %s\ndata: %s\n\n", es.seq, name, payload); err != nil {
		return err
	}
	es.flusher.Flush()
	return nil
}

func (es *eventStream) ping() error {
	if _, err := fmt.Fprint(es.w, ": keepalive\n\n"); err != nil {
		return err
	}
	es.flusher.Flush()
	return nil
}

// parseEventFilter reads ?types=a,b. An empty result accepts everything.
func parseEventFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			filter[name] = true
		}
	}
	return filter
}

// handleEvents streams session events. Mining progress is rate limited per
// client so a fast search cannot flood the connection.
// GET /api/events[?types=mined_block,tampered]
func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseEventFilter(r.URL.Query().Get("types"))

	session := s.daemon.Session()
	events := session.Subscribe()
	defer session.Unsubscribe(events)

	stream, err := openEventStream(w)
	if errors.Is(err, errStreamClosed) {
		s.logger.Debug("event stream closed on open", zap.Error(err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view := session.View()
	hello := map[string]any{
		"activeTip":  view.ActiveTip,
		"blockCount": view.BlockCount,
		"isValid":    view.Result.Valid,
	}
	if err := stream.send("connected", hello); err != nil {
		s.logger.Debug("event stream closed before hello", zap.Error(err))
		return
	}

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	var lastProgress time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := stream.ping(); err != nil {
				return
			}
		case ev := <-events:
			if filter != nil && !filter[ev.Type] {
				continue
			}
			if ev.Type == EventProgress {
				if time.Since(lastProgress) < sseProgressInterval {
					continue
				}
				lastProgress = time.Now()
			}
			if err := stream.send(ev.Type, ev.Data); err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err), zap.Uint64("sent", stream.seq))
				return
			}
		}
	}
}
