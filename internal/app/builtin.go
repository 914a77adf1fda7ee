// SPDX-License-Identifier: MPL-2.0

package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Built-in references.
const (
	StatusRef = "status:app"
	EchoRef   = "echo:app"
	SleepRef  = "sleep:app"
	PanicRef  = "panic:app"

	// RequestIDHeader is echoed back by echo:app.
	RequestIDHeader = "X-Request-Id"

	defaultSleep = time.Second
	maxSleep     = 10 * time.Minute
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func newBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(StatusRef, newStatusApp)
	r.MustRegister(EchoRef, newEchoApp)
	r.MustRegister(SleepRef, newSleepApp)
	r.MustRegister(PanicRef, newPanicApp)
	return r
}

// newRouter returns a bare engine. gin.Recovery is deliberately absent:
// panics belong to the launcher, which answers them with a 500.
func newRouter() *gin.Engine {
	e := gin.New()
	e.HandleMethodNotAllowed = true
	return e
}

// newStatusApp serves a service index on / and a health document on /health.
func newStatusApp(_ context.Context, opts Options) (Application, error) {
	started := time.Now()
	var served atomic.Int64

	r := newRouter()
	r.Use(func(c *gin.Context) {
		served.Add(1)
		c.Next()
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":   "berth status",
			"status": "online",
			"endpoints": gin.H{
				"/":       "Service index",
				"/health": "Health check",
			},
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"uptime_seconds": int64(time.Since(started).Seconds()),
			"requests":       served.Load(),
		})
	})
	opts.Logger.Debug("status application ready", "dir", opts.Dir)
	return r, nil
}

// newEchoApp answers every request with its own id, method, path and body.
func newEchoApp(context.Context, Options) (Application, error) {
	var seq atomic.Uint64

	r := newRouter()
	r.Any("/*path", func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = strconv.FormatUint(seq.Add(1), 10)
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Header(RequestIDHeader, id)
		c.JSON(http.StatusOK, gin.H{
			"id":     id,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"body":   string(body),
		})
	})
	return r, nil
}

// newSleepApp holds each request for ?d=<duration> (default 1s) or until the
// client goes away.
func newSleepApp(context.Context, Options) (Application, error) {
	r := newRouter()
	r.GET("/*path", func(c *gin.Context) {
		d := defaultSleep
		if raw := c.Query("d"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed < 0 || parsed > maxSleep {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad duration %q", raw)})
				return
			}
			d = parsed
		}

		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			c.JSON(http.StatusOK, gin.H{"slept": d.String()})
		case <-c.Request.Context().Done():
			c.Status(http.StatusServiceUnavailable)
		}
	})
	return r, nil
}

// newPanicApp panics on /panic and answers 200 elsewhere.
func newPanicApp(context.Context, Options) (Application, error) {
	r := newRouter()
	r.GET("/panic", func(*gin.Context) {
		panic("panic:app asked to panic")
	})
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r, nil
}
