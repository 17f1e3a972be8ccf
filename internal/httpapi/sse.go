package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helix-run/helix/internal/jobbus"
)

// handleStream relays a job's event stream as SSE (spec §6): each event
// is written as "event: <type>\ndata: <json>\n\n"; an unknown job gets a
// 404 JSON error instead of a stream.
func (s *Server) handleStream(c *gin.Context) {
	jobID := c.Param("id")
	if s.bus.GetJob(jobID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	setSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	events, unsubscribe := s.bus.Subscribe(c.Request.Context(), jobID)
	defer unsubscribe()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSEEvent(c.Writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w http.ResponseWriter, event jobbus.PhaseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
