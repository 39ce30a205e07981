package server

import (
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// ginSink adapts a gin.Context's writer into a proxy.Sink, encoding each
// upstream frame as its own SSE event via gin-contrib/sse and flushing
// immediately so the client sees bytes as soon as upstream produces them.
type ginSink struct {
	c       *gin.Context
	flusher http.Flusher
}

func newGinSink(c *gin.Context) *ginSink {
	flusher, _ := c.Writer.(http.Flusher)
	return &ginSink{c: c, flusher: flusher}
}

func (s *ginSink) WriteFrame(data []byte) error {
	return sse.Encode(s.c.Writer, sse.Event{Data: string(data)})
}

func (s *ginSink) Flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
