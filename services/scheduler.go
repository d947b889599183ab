// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job names registered by the scheduler.
const (
	JobDrainSweep = "drain-sweep"
	JobReapGuests = "reap-guests"
)

// Scheduler runs the periodic maintenance jobs: a drain of every known
// queue (catches joins whose triggered drain failed) and guest reaping.
// Each job runs in singleton mode, so a slow run is never overlapped.
type Scheduler struct {
	sched gocron.Scheduler
	jobs  map[string]gocron.Job
}

type SchedulerOptions struct {
	DrainInterval time.Duration
	ReapInterval  time.Duration
}

func NewScheduler(matchmaking *MatchmakingService, guests *GuestService, opts SchedulerOptions) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, jobs: make(map[string]gocron.Job)}

	if matchmaking != nil && opts.DrainInterval > 0 {
		err := s.add(JobDrainSweep, opts.DrainInterval, func(ctx context.Context) {
			formed, err := matchmaking.DrainAll(ctx)
			if err != nil {
				log.Printf("⚠️ [SCHEDULER] drain sweep: %v", err)
			}
			if formed > 0 {
				log.Printf("✅ [SCHEDULER] drain sweep formed %d games", formed)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if guests != nil && opts.ReapInterval > 0 {
		err := s.add(JobReapGuests, opts.ReapInterval, func(ctx context.Context) {
			if _, err := guests.Reap(ctx); err != nil {
				log.Printf("⚠️ [SCHEDULER] guest reaping: %v", err)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, task func(ctx context.Context)) error {
	job, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[name] = job
	log.Printf("⏱️ [SCHEDULER] %s every %s", name, every)
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.sched.Start() }

// RunNow triggers a job immediately, outside its interval.
func (s *Scheduler) RunNow(name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("no job named %s", name)
	}
	return job.RunNow()
}

// Shutdown stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Shutdown() error { return s.sched.Shutdown() }
