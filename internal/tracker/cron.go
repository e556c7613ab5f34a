package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs the tracker every ten minutes.
const DefaultSpec = "@every 10m"

// Cron runs the tracker on a cron schedule. A run that is still going when
// the next tick fires makes that tick a no-op.
type Cron struct {
	cron    *cron.Cron
	tracker *Tracker
	spec    string
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewCron creates a Cron for t. An empty spec uses DefaultSpec.
func NewCron(t *Tracker, spec string, log *slog.Logger) *Cron {
	if spec == "" {
		spec = DefaultSpec
	}
	cl := cronLogger{log: log}
	return &Cron{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		tracker: t,
		spec:    spec,
		log:     log,
	}
}

// Start registers the job, starts the scheduler and triggers one run
// immediately. The immediate run shares the skip guard with scheduled ones.
func (c *Cron) Start(ctx context.Context) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: c.log})).Then(cron.FuncJob(func() {
		if _, err := c.tracker.RunOnce(ctx); err != nil {
			c.log.Error("performance update", "error", err)
		}
	}))
	if _, err := c.cron.AddJob(c.spec, job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	c.cron.Start()
	c.log.Info("tracker cron started", "spec", c.spec)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		job.Run()
	}()
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
	c.wg.Wait()
	c.log.Info("tracker cron stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
