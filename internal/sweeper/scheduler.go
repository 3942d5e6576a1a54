// Package sweeper is the Recovery & Fan-out component (C6): periodic
// jobs that keep the pipeline moving when a worker process dies
// mid-task — requeuing stale ledger jobs and stale OCR chunks,
// reclaiming chunk storage once a document's retention window lapses,
// and surfacing a running count of poor-quality documents. The
// scheduling shape mirrors crawler.Scheduler's gocron wrapper.
package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler wraps a gocron.Scheduler running in UTC with unique tags,
// so a sweep job can be re-registered without producing a duplicate.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	ctx       context.Context
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Start() { s.scheduler.StartAsync() }

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) ScheduleInterval(tag string, interval time.Duration, job func() error) error {
	_, err := s.scheduler.Every(interval).Tag(tag).Do(job)
	return err
}

func (s *Scheduler) RemoveJob(tag string) error { return s.scheduler.RemoveByTag(tag) }

func (s *Scheduler) GetJobs() []*gocron.Job { return s.scheduler.Jobs() }
