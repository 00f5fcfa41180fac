// Package worker runs packing jobs pulled from a queue against blobs in
// storage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/packer"
	"github.com/luxfi/packer/internal/metrics"
	"github.com/luxfi/packer/internal/queue"
	"github.com/luxfi/packer/internal/storage"
	"github.com/luxfi/packer/internal/wire"
	"github.com/luxfi/packer/table"
)

// Common errors.
var (
	ErrRunning         = errors.New("pool already running")
	ErrShutdownTimeout = errors.New("shutdown timeout")
	ErrUnknownKind     = errors.New("unknown job kind")
	ErrFingerprint     = errors.New("job fingerprint does not match packer")
)

// popRetryDelay is how long a worker backs off after a failed Pop.
const popRetryDelay = time.Second

// Config sizes a Pool.
type Config struct {
	// Workers is the number of jobs processed concurrently.
	Workers int
	// Parallelism bounds the goroutines one job fans out to. Zero means 1.
	Parallelism int
	// ShutdownTimeout bounds Stop. Zero means 30s.
	ShutdownTimeout time.Duration
}

// Pool runs packing jobs.
type Pool struct {
	cfg     Config
	queue   queue.Queue
	storage storage.Storage
	packer  *packer.IntegerPacker
	metrics *metrics.Metrics
	logger  *zap.Logger

	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
	successCount atomic.Int64
	failureCount atomic.Int64
}

// New creates a pool. A nil m gets unregistered metrics and a nil logger
// discards output.
func New(cfg Config, q queue.Queue, s storage.Storage, p *packer.IntegerPacker, m *metrics.Metrics, logger *zap.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:     cfg,
		queue:   q,
		storage: s,
		packer:  p,
		metrics: m,
		logger:  logger,
	}
}

// Start launches the workers. They run until Stop or until ctx is done.
func (p *Pool) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("starting workers",
		zap.Int("workers", p.cfg.Workers),
		zap.String("scheme", p.packer.Scheme().Name()),
		zap.Stringer("plan", p.packer.Plan()),
		zap.Stringer("compression", p.packer.CompressionPlan()),
	)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() error {
	if !p.running.Load() {
		return nil
	}

	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped",
			zap.Int64("succeeded", p.successCount.Load()),
			zap.Int64("failed", p.failureCount.Load()),
		)
	case <-time.After(p.cfg.ShutdownTimeout):
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, p.cfg.ShutdownTimeout)
	}

	p.running.Store(false)
	return nil
}

// Stats returns the number of succeeded and failed jobs.
func (p *Pool) Stats() (succeeded, failed int64) {
	return p.successCount.Load(), p.failureCount.Load()
}

// Submit stores input and enqueues a job of kind over it.
func (p *Pool) Submit(ctx context.Context, kind queue.Kind, input []byte) (*queue.Job, error) {
	handle, err := p.storage.Store(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("store input: %w", err)
	}
	return p.Enqueue(ctx, kind, handle)
}

// Enqueue enqueues a job of kind over a blob already in storage, such as the
// result of an earlier job.
func (p *Pool) Enqueue(ctx context.Context, kind queue.Kind, input storage.Handle) (*queue.Job, error) {
	job := &queue.Job{
		Kind:        kind,
		InputHandle: string(input),
		Fingerprint: p.packer.Fingerprint(),
	}
	if err := p.queue.Push(ctx, job); err != nil {
		return nil, fmt.Errorf("push job: %w", err)
	}
	return job, nil
}

// Await polls the queue until the job finishes or ctx is done.
func Await(ctx context.Context, q queue.Queue, id string, interval time.Duration) (*queue.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == queue.StatusCompleted || job.Status == queue.StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With(zap.Int("worker", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping")
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			log.Warn("failed to pop job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}

		p.processJob(ctx, log, job)
	}
}

func (p *Pool) processJob(ctx context.Context, log *zap.Logger, job *queue.Job) {
	log = log.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	log.Debug("processing job")
	start := time.Now()

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Warn("failed to update job status", zap.Error(err))
	}

	handle, err := p.run(ctx, job)
	p.metrics.ObserveJob(string(job.Kind), time.Since(start).Seconds(), err)

	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		p.failureCount.Add(1)
		log.Warn("job failed", zap.Error(err))
	} else {
		job.Status = queue.StatusCompleted
		job.ResultHandle = string(handle)
		p.successCount.Add(1)
		log.Debug("job completed", zap.Duration("took", time.Since(start)))
	}

	if err := p.queue.Update(ctx, job); err != nil {
		log.Warn("failed to update job result", zap.Error(err))
	}
}

func (p *Pool) run(ctx context.Context, job *queue.Job) (storage.Handle, error) {
	if job.Fingerprint != 0 && job.Fingerprint != p.packer.Fingerprint() {
		return "", fmt.Errorf("%w: job %016x, packer %016x", ErrFingerprint, job.Fingerprint, p.packer.Fingerprint())
	}

	input, err := p.storage.Load(ctx, storage.Handle(job.InputHandle))
	if err != nil {
		return "", fmt.Errorf("load input: %w", err)
	}

	var output []byte
	switch job.Kind {
	case queue.KindPackEncrypt:
		output, err = p.packEncrypt(ctx, input)
	case queue.KindCompress:
		output, err = p.compress(input)
	case queue.KindDecryptUnpack:
		output, err = p.decryptUnpack(ctx, input)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	if err != nil {
		return "", err
	}

	handle, err := p.storage.Store(ctx, output)
	if err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}
	return handle, nil
}

func (p *Pool) packEncrypt(ctx context.Context, input []byte) ([]byte, error) {
	records, err := wire.DecodeRecords(input)
	if err != nil {
		return nil, err
	}
	tensors, err := p.packer.PackAndEncryptTable(ctx, table.FromValues(records), p.cfg.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("pack and encrypt: %w", err)
	}

	p.metrics.RecordsPacked.Add(float64(len(records)))
	p.metrics.CiphertextsOut.Add(float64(len(records) * p.packer.NumSlots()))

	return wire.EncodeTensors(p.packer, tensors.Values())
}

func (p *Pool) compress(input []byte) ([]byte, error) {
	tensors, err := wire.DecodeTensors(p.packer, input)
	if err != nil {
		return nil, err
	}
	pkgs, err := p.packer.Compress(tensors)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}

	before := len(tensors) * p.packer.NumSlots()
	after := 0
	for _, pkg := range pkgs {
		after += pkg.CiphertextCount()
	}
	p.metrics.CiphertextsOut.Add(float64(after))
	p.metrics.CiphertextsMerged.Add(float64(before - after))

	return wire.EncodePackages(p.packer, pkgs)
}

func (p *Pool) decryptUnpack(ctx context.Context, input []byte) ([]byte, error) {
	items, err := wire.DecodeDecryptables(p.packer, input)
	if err != nil {
		return nil, err
	}
	records, err := packer.DecryptAndUnpackTable(ctx, p.packer, table.FromValues(items), p.cfg.Parallelism)
	if err != nil {
		return nil, err
	}
	return wire.EncodeRecords(records)
}
