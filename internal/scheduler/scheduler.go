// Package scheduler wires the three periodic jobs (matching, follow-up,
// inactivity) to wall-clock cron schedules and wraps each body in the
// bounded retry policy the round protocol assumes.
//
// Concurrency: each job runs at most once in flight; overlapping or missed
// fire times are coalesced into a single run (cron.SkipIfStillRunning).
// Correctness under a manual trigger racing a scheduled one is provided by
// the store's atomic inserts, not by anything here — this layer only keeps
// a single job from stacking on itself.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// jobRuns counts job executions by terminal status. "fatal" means all
// retry attempts were exhausted.
var jobRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coffee_job_runs_total",
		Help: "Total scheduled job runs by terminal status.",
	},
	[]string{"job", "status"},
)

func init() {
	prometheus.MustRegister(jobRuns)
}

// retryDelays escalate between attempts. Three attempts total; the last
// delay is reached only when the second retry also fails and is therefore
// never slept.
var retryDelays = []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute}

// Scheduler runs the periodic jobs. Construct with New, register jobs with
// Add, then Start.
type Scheduler struct {
	cron   *cron.Cron
	log    zerolog.Logger
	tracer trace.Tracer

	// sleep is a seam so tests can observe retry delays without waiting.
	sleep func(time.Duration)
}

// New constructs a Scheduler. Job bodies that panic are recovered and
// logged; a panicking job counts as a failed attempt for its run.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		log:    log,
		tracer: otel.Tracer("github.com/tbourn/go-coffee-bot/internal/scheduler"),
		sleep:  time.Sleep,
	}
}

// Add registers a job under a standard 5-field cron spec.
func (s *Scheduler) Add(name, spec string, body func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() { s.runWithRetry(name, body) })
	return err
}

// Start begins firing schedules in their own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops firing and waits for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// runWithRetry executes one job run: up to len(retryDelays) attempts with
// escalating delays between them, then a fatal log. The period is left in
// whatever partial state the last attempt produced; there is no rollback —
// the store-level idempotency protocol makes the next trigger safe.
func (s *Scheduler) runWithRetry(name string, body func(context.Context) error) {
	runID := uuid.NewString()
	log := s.log.With().Str("job", name).Str("run_id", runID).Logger()

	ctx, span := s.tracer.Start(context.Background(), "job:"+name,
		trace.WithAttributes(attribute.String("job.run_id", runID)))
	defer span.End()

	log.Info().Msg("job started")
	attempts := len(retryDelays)
	for attempt := 0; attempt < attempts; attempt++ {
		err := s.runOnce(ctx, body)
		if err == nil {
			jobRuns.WithLabelValues(name, "success").Inc()
			log.Info().Int("attempt", attempt+1).Msg("job finished")
			return
		}

		span.RecordError(err)
		if attempt < attempts-1 {
			delay := retryDelays[attempt]
			log.Error().Err(err).
				Int("attempt", attempt+1).
				Dur("retry_in", delay).
				Msg("job attempt failed, retrying")
			jobRuns.WithLabelValues(name, "retry").Inc()
			s.sleep(delay)
			continue
		}

		span.SetStatus(codes.Error, err.Error())
		jobRuns.WithLabelValues(name, "fatal").Inc()
		log.Error().Err(err).
			Int("attempts", attempts).
			Msg("job failed after all attempts, giving up for this run")
	}
}

// runOnce executes one attempt, converting a panic into an error so a bad
// attempt can still be retried.
func (s *Scheduler) runOnce(ctx context.Context, body func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return body(ctx)
}

// panicError wraps a recovered panic value as an error.
type panicError struct{ value interface{} }

func (p *panicError) Error() string { return fmt.Sprintf("job panicked: %v", p.value) }
