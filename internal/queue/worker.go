package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Processor runs registered handlers on jobs pulled from a RedisQueue.
type Processor struct {
	queue      *RedisQueue
	logger     *zap.Logger
	numWorkers int
	pollWait   time.Duration

	mu       sync.RWMutex
	handlers map[JobType]JobHandler

	wg        sync.WaitGroup
	cancel    context.CancelFunc
	scheduler *gocron.Scheduler
}

// NewProcessor creates a processor with numWorkers goroutines.
func NewProcessor(queue *RedisQueue, logger *zap.Logger, numWorkers int) *Processor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Processor{
		queue:      queue,
		logger:     logger,
		numWorkers: numWorkers,
		pollWait:   time.Second,
		handlers:   make(map[JobType]JobHandler),
		scheduler:  gocron.NewScheduler(time.UTC),
	}
}

// RegisterHandler registers a handler for a job type
func (p *Processor) RegisterHandler(jobType JobType, handler JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
	p.logger.Debug("registered job handler", zap.String("job_type", string(jobType)))
}

func (p *Processor) types() []JobType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := make([]JobType, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	return types
}

func (p *Processor) handler(t JobType) (JobHandler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[t]
	return h, ok
}

// ProcessNext handles at most one job, waiting up to the poll interval for
// one to arrive. It reports whether a job was handled.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	types := p.types()
	if len(types) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(p.pollWait):
		}
		return false, nil
	}

	job, err := p.queue.Dequeue(ctx, p.pollWait, types...)
	if err != nil || job == nil {
		return false, err
	}

	h, ok := p.handler(job.Type)
	if !ok {
		_, rerr := p.queue.Retry(ctx, *job, fmt.Errorf("no handler for job type %s", job.Type))
		return true, rerr
	}

	if herr := p.run(ctx, h, *job); herr != nil {
		again, rerr := p.queue.Retry(ctx, *job, herr)
		if rerr != nil {
			return true, rerr
		}
		p.logger.Warn("job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("attempt", job.Attempts+1),
			zap.Bool("will_retry", again),
			zap.Error(herr),
		)
		return true, nil
	}

	p.logger.Debug("job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
	)
	return true, nil
}

func (p *Processor) run(ctx context.Context, h JobHandler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

// PromoteDelayed moves due retries for every registered type back onto the
// main queue.
func (p *Processor) PromoteDelayed(ctx context.Context) {
	now := p.queue.now()
	for _, t := range p.types() {
		if _, err := p.queue.PromoteDue(ctx, t, now); err != nil {
			p.logger.Error("error promoting delayed jobs", zap.String("job_type", string(t)), zap.Error(err))
		}
	}
}

// Start launches the workers and the delayed job scheduler.
func (p *Processor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("starting job workers", zap.Int("workers", p.numWorkers))
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}

	if _, err := p.scheduler.Every(5).Seconds().Do(func() {
		p.PromoteDelayed(ctx)
	}); err != nil {
		return fmt.Errorf("error scheduling delayed job promotion: %w", err)
	}
	p.scheduler.StartAsync()
	return nil
}

func (p *Processor) loop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			p.logger.Debug("job worker stopped", zap.Int("worker", workerID))
			return
		}
		if _, err := p.ProcessNext(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			p.logger.Error("error processing job", zap.Int("worker", workerID), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Processor) Stop() {
	p.scheduler.Stop()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
