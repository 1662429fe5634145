// Package stats maintains the server's lifetime counters and appends
// them to the statistics file on demand.
package stats

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is a point-in-time copy of every counter.
type Counters struct {
	Registered       int64
	Online           int64
	Delivered        int64
	NotDelivered     int64
	FileDelivered    int64
	FileNotDelivered int64
	Errors           int64
}

// Stats accumulates the counters under a single mutex. Every request
// applies its deltas in one Add call so a dump never observes a
// half-applied request.
type Stats struct {
	mu sync.Mutex
	c  Counters

	gauges struct {
		registered       prometheus.Gauge
		online           prometheus.Gauge
		delivered        prometheus.Gauge
		notDelivered     prometheus.Gauge
		fileDelivered    prometheus.Gauge
		fileNotDelivered prometheus.Gauge
		errors           prometheus.Gauge
	}
}

// New returns zeroed stats with the mirror gauges registered on reg.
// Pass nil to skip metrics registration.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatty",
			Name:      name,
			Help:      help,
		})
		if reg != nil {
			reg.MustRegister(g)
		}
		return g
	}
	s.gauges.registered = gauge("registered_users", "Registered users.")
	s.gauges.online = gauge("online_users", "Users currently online.")
	s.gauges.delivered = gauge("messages_delivered_total", "Text messages delivered directly.")
	s.gauges.notDelivered = gauge("messages_stored_total", "Text messages stored for offline users.")
	s.gauges.fileDelivered = gauge("files_delivered_total", "File notices delivered directly.")
	s.gauges.fileNotDelivered = gauge("files_stored_total", "File notices stored for offline users.")
	s.gauges.errors = gauge("request_errors_total", "Requests answered with an error reply.")
	return s
}

// Add applies one request's deltas atomically. Negative deltas are
// legal (unregister, disconnect).
func (s *Stats) Add(reg, conn, del, ndel, fdel, fndel, errs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Registered += reg
	s.c.Online += conn
	s.c.Delivered += del
	s.c.NotDelivered += ndel
	s.c.FileDelivered += fdel
	s.c.FileNotDelivered += fndel
	s.c.Errors += errs

	s.gauges.registered.Set(float64(s.c.Registered))
	s.gauges.online.Set(float64(s.c.Online))
	s.gauges.delivered.Set(float64(s.c.Delivered))
	s.gauges.notDelivered.Set(float64(s.c.NotDelivered))
	s.gauges.fileDelivered.Set(float64(s.c.FileDelivered))
	s.gauges.fileNotDelivered.Set(float64(s.c.FileNotDelivered))
	s.gauges.errors.Set(float64(s.c.Errors))
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Dump appends one timestamped line of counters to path, creating the
// file if needed. The line layout is stable so the file stays
// machine-parsable across runs.
func (s *Stats) Dump(path string) error {
	c := s.Snapshot()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d - %d %d %d %d %d %d %d\n",
		time.Now().Unix(),
		c.Registered, c.Online,
		c.Delivered, c.NotDelivered,
		c.FileDelivered, c.FileNotDelivered,
		c.Errors)
	if err != nil {
		return fmt.Errorf("append stats line: %w", err)
	}
	return nil
}
