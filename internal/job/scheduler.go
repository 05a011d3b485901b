package job

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on five-field cron specs. A job whose previous run is
// still in progress is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

func (s *Scheduler) AddJob(job Job, spec string) error {
	id, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}
	s.entries[job.Name()] = id
	logger.Info("Job scheduled", zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	if ctx != nil {
		s.ctx = ctx
	}
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logger.Info("Job skipped, previous run still in progress", zap.String("job", job.Name()))
			return
		}
		defer running.Store(false)

		start := time.Now()
		err := job.Run(s.ctx)
		fields := []zap.Field{
			zap.String("job", job.Name()),
			zap.String("spec", spec),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Error("Job failed", append(fields, zap.Error(err))...)
			return
		}
		logger.Info("Job finished", fields...)
	}
}
