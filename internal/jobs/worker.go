package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/export"
	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/queue"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
)

// Start runs the workers until ctx is cancelled or Close is called, then
// waits for running jobs to return.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("job workers started", "workers", m.opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < m.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			m.work(ctx, worker)
		}(i)
	}

	<-ctx.Done()
	m.queue.Close()
	wg.Wait()
	m.logger.Info("job workers stopped")
}

// Close stops accepting jobs. Workers finish what is already queued.
func (m *Manager) Close() error {
	return m.queue.Close()
}

func (m *Manager) work(ctx context.Context, worker int) {
	logger := m.logger.With("worker", worker)

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				logger.Error("failed to take task", "error", err)
			}
			return
		}

		if err := m.gate.Wait(ctx); err != nil {
			m.fail(task.ID, err)
			return
		}

		logger.Info("processing job", "id", task.ID, "query", task.Query)
		if err := m.runJob(ctx, task); err != nil {
			logger.Error("job failed", "id", task.ID, "error", err)
			m.fail(task.ID, err)
			continue
		}
		logger.Info("job completed", "id", task.ID)
	}
}

// runJob searches every marketplace of the task. The job fails only when
// no marketplace could be searched or the context was cancelled.
func (m *Manager) runJob(ctx context.Context, task *queue.Task) error {
	now := time.Now()
	m.update(task.ID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &now
	})

	var products []*models.Product
	var errs []error

	for _, name := range task.Marketplaces {
		marketplace, err := scraper.New(name, task.Country)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		result, err := m.searcher.Search(ctx, marketplace, task.Query, task.MaxPages)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entry := MarketplaceResult{Marketplace: marketplace.Name()}
		if err != nil {
			entry.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", marketplace.Name(), err))
		}
		if result != nil {
			entry.Stats = result.Stats
			products = append(products, result.Products...)
		}

		m.update(task.ID, func(j *Job) {
			j.Results = append(j.Results, entry)
			j.PagesScraped += entry.Stats.Pages
			j.PagesFailed += entry.Stats.PagesFailed
			j.ProductsFound += entry.Stats.Products
			j.ProductsWithPrice += entry.Stats.ProductsWithPrice
		})
	}

	if len(errs) > 0 && len(errs) == len(task.Marketplaces) {
		return errors.Join(errs...)
	}

	m.afterSearch(ctx, task, products)

	done := time.Now()
	m.update(task.ID, func(j *Job) {
		j.products = products
		j.Status = StatusCompleted
		j.CompletedAt = &done
	})
	return nil
}

// afterSearch runs the optional sinks. Their failures are logged and do
// not fail the job.
func (m *Manager) afterSearch(ctx context.Context, task *queue.Task, products []*models.Product) {
	if m.index != nil {
		res, err := m.index.MarkSeen(products)
		if err != nil {
			m.logger.Error("failed to update listing index", "id", task.ID, "error", err)
		}
		m.update(task.ID, func(j *Job) { j.ProductsNew = res.New })
	}

	if m.publisher != nil && len(products) > 0 {
		if _, err := m.publisher.PublishListingsScraped(ctx, task.ID, task.Query, task.Country, products); err != nil {
			m.logger.Error("failed to publish listings", "id", task.ID, "error", err)
		}
	}

	if m.exporter != nil && m.opts.ExportFormat != "" && len(products) > 0 {
		filename := export.DefaultFilename("job_"+task.ID[:8], m.opts.ExportFormat, time.Now())
		path, err := m.exporter.Export(products, m.opts.ExportFormat, filename)
		if err != nil {
			m.logger.Error("failed to export job", "id", task.ID, "error", err)
			return
		}
		m.update(task.ID, func(j *Job) { j.ExportPath = path })
	}
}
