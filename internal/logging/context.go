package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Keys set by the request middleware.
const (
	RequestIDKey = "request_id"
	StartTimeKey = "start_time"
)

// fromRequest adds the request id, route and elapsed time to e.
func fromRequest(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	if c == nil {
		return e
	}
	if id := c.GetString(RequestIDKey); id != "" {
		e.Str("request_id", id)
	}
	if route := c.FullPath(); route != "" {
		e.Str("route", route)
	}
	if t, ok := c.Get(StartTimeKey); ok {
		if start, ok := t.(time.Time); ok {
			e.Dur("elapsed", time.Since(start))
		}
	}
	return e
}

func Info(c *gin.Context) *zerolog.Event  { return fromRequest(c, log.Info()) }
func Debug(c *gin.Context) *zerolog.Event { return fromRequest(c, log.Debug()) }
func Warn(c *gin.Context) *zerolog.Event  { return fromRequest(c, log.Warn()) }
func Error(c *gin.Context) *zerolog.Event { return fromRequest(c, log.Error()) }
