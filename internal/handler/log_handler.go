package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mail-archivist/internal/logstream"
)

// Response headers of GET /api/logs.
const (
	HeaderLogCursor = "X-Log-Cursor"
	HeaderLogGap    = "X-Log-Gap"
)

type LogHandler struct {
	stream *logstream.Stream
}

func NewLogHandler(stream *logstream.Stream) *LogHandler {
	return &LogHandler{stream: stream}
}

// Drain handles GET /api/logs?since=N. The body is the entries after N; the
// cursor for the next poll is returned in X-Log-Cursor.
func (h *LogHandler) Drain(c *gin.Context) {
	var since uint64
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	entries, next, gap := h.stream.Drain(since)
	c.Header(HeaderLogCursor, strconv.FormatUint(next, 10))
	c.Header(HeaderLogGap, strconv.FormatBool(gap))
	c.JSON(http.StatusOK, entries)
}
