// Package metrics keeps in-process counters for HTTP requests, search runs
// and outbound email since the process started.
package metrics

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/entity"
)

// Requests counts HTTP traffic.
type Requests struct {
	Total     int            `json:"total"`
	Errors    int            `json:"errors"`
	ErrorRate string         `json:"error_rate"`
	ByRoute   map[string]int `json:"by_route"`
	ByStatus  map[string]int `json:"by_status"`
}

// Searches counts runs.
type Searches struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Emails counts outbound messages.
type Emails struct {
	Queued  int `json:"queued"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Stalled int `json:"stalled"`
}

// Uptime is the time since the collector was created.
type Uptime struct {
	Seconds   int64  `json:"seconds"`
	Formatted string `json:"formatted"`
}

// Snapshot is a copy of every counter at one instant.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    Uptime    `json:"uptime"`
	Requests  Requests  `json:"requests"`
	Searches  Searches  `json:"searches"`
	Emails    Emails    `json:"emails"`
}

// Collector is safe for concurrent use. It satisfies dispatch.Observer so it
// can subscribe to the send queue directly.
type Collector struct {
	now     func() time.Time
	started time.Time

	mu       sync.Mutex
	requests Requests
	searches Searches
	emails   Emails
}

var _ dispatch.Observer = (*Collector)(nil)

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a collector with every counter at zero.
func New(opts ...Option) *Collector {
	c := &Collector{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	c.requests.ByRoute = map[string]int{}
	c.requests.ByStatus = map[string]int{}
	return c
}

// RecordRequest counts one finished request. route should be the route
// pattern, not the raw path, to keep the key set bounded.
func (c *Collector) RecordRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests.Total++
	c.requests.ByRoute[route]++
	c.requests.ByStatus[strconv.Itoa(status)]++
	if status >= 400 {
		c.requests.Errors++
	}
}

func (c *Collector) RunStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches.Total++
	c.searches.InProgress++
}

func (c *Collector) RunFinished(status entity.RunStatus, m entity.RunMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searches.InProgress > 0 {
		c.searches.InProgress--
	}
	switch status {
	case entity.RunCompleted:
		c.searches.Completed++
	case entity.RunFailed:
		c.searches.Failed++
	}
	c.emails.Queued += m.EmailsQueued
}

// EmailQueued counts messages queued outside search runs, such as automatic replies.
func (c *Collector) EmailQueued() {
	c.mu.Lock()
	c.emails.Queued++
	c.mu.Unlock()
}

func (c *Collector) OnCompleted(dispatch.Event) {
	c.mu.Lock()
	c.emails.Sent++
	c.mu.Unlock()
}

func (c *Collector) OnFailed(dispatch.Event) {
	c.mu.Lock()
	c.emails.Failed++
	c.mu.Unlock()
}

func (c *Collector) OnStalled(dispatch.Event) {
	c.mu.Lock()
	c.emails.Stalled++
	c.mu.Unlock()
}

// Snapshot copies the counters.
func (c *Collector) Snapshot() Snapshot {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	req := c.requests
	req.ByRoute = maps.Clone(c.requests.ByRoute)
	req.ByStatus = maps.Clone(c.requests.ByStatus)
	req.ErrorRate = "0%"
	if req.Total > 0 {
		req.ErrorRate = fmt.Sprintf("%.2f%%", float64(req.Errors)*100/float64(req.Total))
	}
	seconds := int64(now.Sub(c.started) / time.Second)
	return Snapshot{
		Timestamp: now.UTC(),
		Uptime:    Uptime{Seconds: seconds, Formatted: FormatUptime(seconds)},
		Requests:  req,
		Searches:  c.searches,
		Emails:    c.emails,
	}
}

// FormatUptime renders seconds as "1d 2h 3m 4s", omitting zero units.
func FormatUptime(seconds int64) string {
	units := []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}}
	var parts []string
	for _, u := range units {
		if n := seconds / u.size; n > 0 {
			parts = append(parts, strconv.FormatInt(n, 10)+u.suffix)
			seconds %= u.size
		}
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, strconv.FormatInt(seconds, 10)+"s")
	}
	return strings.Join(parts, " ")
}
