package scan

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler runs a scan on a fixed interval, mirroring the daily AML sweep
// most compliance teams run out of hours. Manual scans and scheduled scans
// share the Service's run lock, so they can never overlap.
type Scheduler struct {
	svc      *Service
	interval time.Duration

	mu        sync.Mutex
	running   bool
	nextRun   time.Time
	lastRunAt time.Time
	lastFound int
	lastErr   string
	stop      chan struct{}
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	return &Scheduler{svc: svc, interval: interval}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.interval <= 0 {
		return
	}
	s.running = true
	s.nextRun = time.Now().UTC().Add(s.interval)
	s.stop = make(chan struct{})

	go s.loop(s.stop)
	log.Printf("[scheduler] Started — scan every %s", s.interval)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	log.Printf("[scheduler] Stopped")
}

func (s *Scheduler) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	result, err := s.svc.RunScan(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = time.Now().UTC()
	s.nextRun = s.lastRunAt.Add(s.interval)
	if err != nil {
		s.lastErr = err.Error()
		log.Printf("[scheduler] Scheduled scan failed: %v", err)
		return
	}
	s.lastErr = ""
	s.lastFound = result.NewViolations
	log.Printf("[scheduler] Scheduled scan complete — %d new violation(s)", result.NewViolations)
}

// Status reports the scheduler state for the API.
type Status struct {
	Running bool       `json:"running"`
	NextRun *time.Time `json:"next_run"`
	LastRun LastRun    `json:"last_run"`
}

type LastRun struct {
	Timestamp       *time.Time `json:"timestamp"`
	ViolationsFound int        `json:"violations_found"`
	Error           string     `json:"error,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running}
	if s.running {
		next := s.nextRun
		st.NextRun = &next
	}
	if !s.lastRunAt.IsZero() {
		ts := s.lastRunAt
		st.LastRun.Timestamp = &ts
	}
	st.LastRun.ViolationsFound = s.lastFound
	st.LastRun.Error = s.lastErr
	return st
}
