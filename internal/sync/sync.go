// Package sync periodically exports company profiles as JSONL to external
// destinations.
package sync

import (
	"bytes"
	"context"
	"log/slog"
	"time"
)

// Destination receives each profile export.
type Destination interface {
	// Name identifies the destination in logs, e.g. s3://bucket/key.
	Name() string
	// Write stores one complete JSONL export.
	Write(ctx context.Context, data []byte) error
}

// Report summarizes one export run.
type Report struct {
	Profiles int
	Bytes    int
	Failed   []string // names of destinations whose upload failed
}

// Scheduler exports the profile table on a fixed interval.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	stop context.CancelFunc
	done chan struct{}
}

// NewScheduler returns a scheduler exporting from source every interval.
func NewScheduler(source Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       source,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start exports immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop ends the schedule, waiting for an export in progress to finish.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.SyncOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce builds one export and uploads it to every destination. A failed
// upload is logged and does not stop the remaining ones; a failed export
// uploads nothing.
func (s *Scheduler) SyncOnce(ctx context.Context) Report {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.source, &buf); err != nil {
		s.logger.Error("profile export failed", "err", err)
		return Report{}
	}
	data := buf.Bytes()
	report := Report{
		Profiles: bytes.Count(data, []byte{'\n'}) - 1, // minus the header line
		Bytes:    len(data),
	}

	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("profile export upload failed", "destination", dest.Name(), "err", err)
			report.Failed = append(report.Failed, dest.Name())
		}
	}

	s.logger.Info("profile export uploaded",
		"profiles", report.Profiles,
		"bytes", report.Bytes,
		"destinations", len(s.destinations)-len(report.Failed),
		"failed", len(report.Failed),
	)
	return report
}
