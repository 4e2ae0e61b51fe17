package kpi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// RecomputePool recomputes the current period's snapshots for every company
// concurrently. Companies are independent inputs, so fan-out is safe; the
// per-company month loop stays sequential inside the service.
type RecomputePool struct {
	service     *SnapshotService
	companies   repository.CompanyRepository
	jobs        repository.BatchJobRepository
	workerCount int
	batchSize   int
	log         zerolog.Logger
}

// NewRecomputePool creates a new recompute pool
func NewRecomputePool(
	service *SnapshotService,
	companies repository.CompanyRepository,
	jobs repository.BatchJobRepository,
	workerCount, batchSize int,
	log zerolog.Logger,
) *RecomputePool {
	return &RecomputePool{
		service:     service,
		companies:   companies,
		jobs:        jobs,
		workerCount: workerCount,
		batchSize:   batchSize,
		log:         log.With().Str("component", "recompute_pool").Logger(),
	}
}

// RecomputeAll records a fresh snapshot set for every company as of the
// given period.
func (p *RecomputePool) RecomputeAll(ctx context.Context, jobID uuid.UUID, asOf time.Time) error {
	total, err := p.companies.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count companies: %w", err)
	}

	p.jobs.UpdateStatus(ctx, jobID, entity.JobStatusRunning, 0, 0)

	idChan := make(chan uuid.UUID, p.batchSize)
	errChan := make(chan error, 1)

	var processed int64
	var failed int64

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for companyID := range idChan {
				if _, _, err := p.service.RecordSnapshots(ctx, companyID, asOf); err != nil {
					p.log.Warn().Err(err).
						Int("worker", workerID).
						Str("company_id", companyID.String()).
						Msg("snapshot recompute failed")
					atomic.AddInt64(&failed, 1)
					p.jobs.UpdateProgress(ctx, jobID, 0, 1)
					continue
				}
				if n := atomic.AddInt64(&processed, 1); n%int64(p.batchSize) == 0 {
					p.jobs.UpdateProgress(ctx, jobID, int64(p.batchSize), 0)
				}
			}
		}(i)
	}

	// Dispatcher: page through company IDs and feed the workers.
	go func() {
		defer close(idChan)
		offset := 0
		for {
			ids, err := p.companies.ListIDs(ctx, p.batchSize, offset)
			if err != nil {
				errChan <- fmt.Errorf("failed to list company IDs: %w", err)
				return
			}
			if len(ids) == 0 {
				return
			}
			for _, id := range ids {
				select {
				case <-ctx.Done():
					return
				case idChan <- id:
				}
			}
			offset += len(ids)
		}
	}()

	wg.Wait()

	select {
	case err := <-errChan:
		p.jobs.Fail(ctx, jobID, err.Error())
		return err
	default:
	}

	// Flush the remainder the batch-sized progress updates missed.
	if rem := atomic.LoadInt64(&processed) % int64(p.batchSize); rem > 0 {
		p.jobs.UpdateProgress(ctx, jobID, rem, 0)
	}
	if err := p.jobs.Complete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&processed)).
		Int64("failed", atomic.LoadInt64(&failed)).
		Int64("total", total).
		Msg("recompute complete")
	return nil
}
