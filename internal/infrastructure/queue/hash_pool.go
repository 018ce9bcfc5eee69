// Package queue runs CPU-bound work on a fixed set of workers so request
// bursts queue up instead of saturating every core.
package queue

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

const channelBuffer = 256

// ErrPoolStopped is returned for work submitted after the pool shut down.
var ErrPoolStopped = domain.NewError(domain.ErrHashing, "hash pool stopped")

// HashPool serialises password hashing through numWorkers goroutines. It
// implements ports.PasswordHasher by delegating to the wrapped hasher.
type HashPool struct {
	jobs    chan func()
	hasher  ports.PasswordHasher
	workers int
	log     zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

var _ ports.PasswordHasher = (*HashPool)(nil)

// NewHashPool creates a pool with numWorkers workers.
// If numWorkers <= 0, one worker per CPU is used.
func NewHashPool(numWorkers int, hasher ports.PasswordHasher, log zerolog.Logger) *HashPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &HashPool{
		jobs:    make(chan func(), channelBuffer),
		hasher:  hasher,
		workers: numWorkers,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled;
// pending and later calls then fail with ErrPoolStopped.
func (p *HashPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.runWorker(ctx)
	}
	go func() {
		<-ctx.Done()
		p.stopOnce.Do(func() { close(p.done) })
	}()
	p.log.Debug().Int("workers", p.workers).Msg("hash pool started")
}

func (p *HashPool) Hash(plaintext string) (string, error) {
	var (
		hash string
		err  error
	)
	if serr := p.submit(func() { hash, err = p.hasher.Hash(plaintext) }); serr != nil {
		return "", serr
	}
	return hash, err
}

func (p *HashPool) Verify(plaintext, hash string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if serr := p.submit(func() { ok, err = p.hasher.Verify(plaintext, hash) }); serr != nil {
		return false, serr
	}
	return ok, err
}

// submit blocks until a worker has run fn or the pool stops.
func (p *HashPool) submit(fn func()) error {
	var jobErr error
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Msg("hash job panicked")
				jobErr = domain.NewError(domain.ErrHashing, "hash job failed")
			}
		}()
		fn()
	}

	select {
	case p.jobs <- job:
	case <-p.done:
		return ErrPoolStopped
	}

	select {
	case <-finished:
		return jobErr
	case <-p.done:
		// A worker may have picked the job just before stopping.
		select {
		case <-finished:
			return jobErr
		default:
			return ErrPoolStopped
		}
	}
}

func (p *HashPool) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			job()
		}
	}
}
