package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/printing/service"
)

type Queue interface {
	GetNextJob(ctx context.Context, printerID string) (*domain.PrinterJob, error)
	MarkJobStarted(ctx context.Context, id string) (*domain.PrinterJob, error)
	CompleteAttempt(ctx context.Context, id string, startedAt time.Time, durationMs *int64) (*domain.PrinterJob, error)
	FailAttempt(ctx context.Context, id string, startedAt time.Time, message, code string) (*domain.PrinterJob, error)
}

type PrinterStore interface {
	Get(ctx context.Context, id string) (*domain.PrinterConfig, error)
	ListActive(ctx context.Context, branchID string) ([]domain.PrinterConfig, error)
}

type Transport interface {
	Send(ctx context.Context, printer *domain.PrinterConfig, content string, copies int) error
}

type Config struct {
	PollInterval    time.Duration
	PrintTimeout    time.Duration
	RefreshInterval time.Duration
}

// Pool runs one consumer loop per active printer. Loops for different
// printers run in parallel; a printer's own jobs are printed one at a time,
// across instances too, through the per-printer lease.
type Pool struct {
	owner     string
	queue     Queue
	printers  PrinterStore
	transport Transport
	locker    Locker
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewPool(queue Queue, printers PrinterStore, transport Transport, locker Locker, cfg Config, logger *zap.Logger) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PrintTimeout <= 0 {
		cfg.PrintTimeout = 10 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	return &Pool{
		owner:     uuid.New().String(),
		queue:     queue,
		printers:  printers,
		transport: transport,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
	}
}

// Run keeps the set of printer loops in line with the active printers until
// ctx is cancelled, then waits for every loop to finish its current job.
func (p *Pool) Run(ctx context.Context) {
	p.refresh(ctx)

	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopAll()
			p.wg.Wait()
			p.logger.Info("print worker pool stopped")
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Pool) refresh(ctx context.Context) {
	printers, err := p.printers.ListActive(ctx, "")
	if err != nil {
		p.logger.Error("listing printers for worker pool", zap.Error(err))
		return
	}

	active := make(map[string]bool, len(printers))
	for _, pr := range printers {
		active[pr.ID] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, cancel := range p.running {
		if !active[id] {
			cancel()
			delete(p.running, id)
			p.logger.Info("printer loop stopped", zap.String("printerId", id))
		}
	}
	for id := range active {
		if _, ok := p.running[id]; ok {
			continue
		}
		loopCtx, cancel := context.WithCancel(ctx)
		p.running[id] = cancel
		p.wg.Add(1)
		go p.loop(loopCtx, id)
		p.logger.Info("printer loop started", zap.String("printerId", id))
	}
}

func (p *Pool) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.running {
		cancel()
		delete(p.running, id)
	}
}

func (p *Pool) loop(ctx context.Context, printerID string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Drain(ctx, printerID); err != nil {
				p.logger.Error("draining printer queue", zap.String("printerId", printerID), zap.Error(err))
			}
		}
	}
}

// LeaseTTL bounds one attempt: the send timeout plus time to load the job
// and report the outcome.
func (p *Pool) LeaseTTL() time.Duration {
	return 2*p.cfg.PrintTimeout + p.cfg.PollInterval
}

// Drain prints every job currently due for the printer. The lease is taken
// or renewed before each job, so a long backlog never outlives it; losing
// the lease stops the drain.
func (p *Pool) Drain(ctx context.Context, printerID string) (int, error) {
	key := "printer:" + printerID
	held := false
	defer func() {
		if !held {
			return
		}
		if err := p.locker.Release(context.Background(), key, p.owner); err != nil {
			p.logger.Warn("releasing printer lease", zap.String("printerId", printerID), zap.Error(err))
		}
	}()

	attempted := 0
	for ctx.Err() == nil {
		ok, err := p.locker.Acquire(ctx, key, p.owner, p.LeaseTTL())
		if err != nil {
			return attempted, err
		}
		if !ok {
			if held {
				p.logger.Warn("printer lease lost mid-drain", zap.String("printerId", printerID), zap.Int("attempted", attempted))
			}
			return attempted, nil
		}
		held = true

		processed, err := p.processNext(ctx, printerID)
		if err != nil {
			return attempted, err
		}
		if !processed {
			break
		}
		attempted++
	}
	return attempted, nil
}

func (p *Pool) processNext(ctx context.Context, printerID string) (bool, error) {
	job, err := p.queue.GetNextJob(ctx, printerID)
	if err != nil || job == nil {
		return false, err
	}

	job, err = p.queue.MarkJobStarted(ctx, job.ID)
	if err != nil {
		return false, err
	}

	startedAt := *job.StartedAt

	printer, err := p.printers.Get(ctx, printerID)
	if err != nil {
		_, ferr := p.queue.FailAttempt(ctx, job.ID, startedAt, err.Error(), service.ErrorCodePrintFailed)
		return p.reported(job.ID, ferr)
	}

	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.PrintTimeout)
	sendErr := p.transport.Send(sendCtx, printer, job.Content, job.Copies)
	cancel()
	elapsed := time.Since(start).Milliseconds()

	// Outcomes are recorded even when the pool is shutting down.
	reportCtx := context.WithoutCancel(ctx)
	if sendErr != nil {
		code := service.ErrorCodePrintFailed
		if te, ok := apperrors.IsTransportError(sendErr); ok {
			code = te.Code
		}
		if sendCtx.Err() == context.DeadlineExceeded {
			code = service.ErrorCodePrintTimeout
		}
		p.logger.Warn("print attempt failed",
			zap.String("jobId", job.ID),
			zap.String("printerId", printerID),
			zap.String("code", code),
			zap.Error(sendErr),
		)
		_, err = p.queue.FailAttempt(reportCtx, job.ID, startedAt, sendErr.Error(), code)
		return p.reported(job.ID, err)
	}

	_, err = p.queue.CompleteAttempt(reportCtx, job.ID, startedAt, &elapsed)
	return p.reported(job.ID, err)
}

// reported treats a rejected report for an attempt that was already closed,
// by stale recovery for instance, as handled.
func (p *Pool) reported(jobID string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if _, ok := apperrors.IsConflictError(err); ok {
		p.logger.Warn("print outcome dropped, attempt already closed", zap.String("jobId", jobID), zap.Error(err))
		return true, nil
	}
	return false, err
}
