package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/marketplace-scraper/internal/events"
	"github.com/maltedev/marketplace-scraper/internal/export"
	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/queue"
	"github.com/maltedev/marketplace-scraper/internal/ratelimit"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/maltedev/marketplace-scraper/internal/storage"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid job request")
)

// Searcher runs one search on one marketplace.
type Searcher interface {
	Search(ctx context.Context, m scraper.Marketplace, query string, maxPages int) (*scraper.Result, error)
}

type Publisher interface {
	PublishListingsScraped(ctx context.Context, jobID, query, country string, products []*models.Product) (*events.ListingsScrapedPayload, error)
}

type Exporter interface {
	Export(products []*models.Product, format export.Format, filename string) (string, error)
}

type Request struct {
	Query        string   `json:"query" validate:"required,min=2,max=200"`
	Marketplaces []string `json:"marketplaces" validate:"omitempty,dive,oneof=mercadolibre falabella megatienda megatiendas"`
	Country      string   `json:"country" validate:"omitempty,len=2,alpha"`
	MaxPages     int      `json:"max_pages" validate:"omitempty,min=1,max=50"`
	Priority     int      `json:"priority" validate:"omitempty,min=0,max=10"`
}

type MarketplaceResult struct {
	Marketplace string        `json:"marketplace"`
	Stats       scraper.Stats `json:"stats"`
	Error       string        `json:"error,omitempty"`
}

type Job struct {
	ID                string              `json:"id"`
	Query             string              `json:"query"`
	Marketplaces      []string            `json:"marketplaces"`
	Country           string              `json:"country"`
	MaxPages          int                 `json:"max_pages"`
	Priority          int                 `json:"priority"`
	Status            string              `json:"status"`
	PagesScraped      int                 `json:"pages_scraped"`
	PagesFailed       int                 `json:"pages_failed"`
	ProductsFound     int                 `json:"products_found"`
	ProductsWithPrice int                 `json:"products_with_price"`
	ProductsNew       int                 `json:"products_new"`
	Results           []MarketplaceResult `json:"results,omitempty"`
	ExportPath        string              `json:"export_path,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	StartedAt         *time.Time          `json:"started_at,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	Error             string              `json:"error,omitempty"`

	products []*models.Product
}

func (j *Job) snapshot() *Job {
	c := *j
	c.Marketplaces = slices.Clone(j.Marketplaces)
	c.Results = slices.Clone(j.Results)
	c.products = nil
	return &c
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	QueuedTasks   int     `json:"queued_tasks"`
	TotalProducts int     `json:"total_products"`
	SuccessRate   float64 `json:"success_rate"`
}

type Options struct {
	Workers      int
	Marketplaces []string
	Country      string
	MaxPages     int
	// StartInterval is how often a new job may start once the burst of
	// Workers starts is used up.
	StartInterval time.Duration
	ExportFormat  export.Format
}

type Option func(*Manager)

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithExporter(e Exporter) Option {
	return func(m *Manager) { m.exporter = e }
}

func WithListingIndex(idx *storage.ListingIndex) Option {
	return func(m *Manager) { m.index = idx }
}

// Manager keeps jobs in memory and runs them on a pool of workers fed by
// a priority queue.
type Manager struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string

	queue    *queue.InMemoryQueue
	batch    *queue.BatchQueue
	gate     ratelimit.RateLimiter
	searcher Searcher

	publisher Publisher
	exporter  Exporter
	index     *storage.ListingIndex

	opts   Options
	logger *slog.Logger
}

func NewManager(searcher Searcher, opts Options, logger *slog.Logger, options ...Option) *Manager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.StartInterval <= 0 {
		opts.StartInterval = 2 * time.Second
	}
	if len(opts.Marketplaces) == 0 {
		opts.Marketplaces = []string{"mercadolibre", "falabella"}
	}

	q := queue.NewInMemoryQueue()
	m := &Manager{
		jobs:     make(map[string]*Job),
		queue:    q,
		batch:    queue.NewBatchQueue(q, opts.Workers),
		gate:     ratelimit.NewTokenBucketRateLimiter(opts.Workers, opts.StartInterval),
		searcher: searcher,
		opts:     opts,
		logger:   logger.With("component", "job_manager"),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// CreateJob registers a job and queues it for the workers.
func (m *Manager) CreateJob(ctx context.Context, req Request) (*Job, error) {
	jobs, err := m.SubmitMany(ctx, []Request{req})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// SubmitMany registers several jobs at once. Either all requests are
// valid and queued or none is.
func (m *Manager) SubmitMany(ctx context.Context, reqs []Request) ([]*Job, error) {
	jobs := make([]*Job, 0, len(reqs))
	tasks := make([]*queue.Task, 0, len(reqs))

	for _, req := range reqs {
		job, err := m.newJob(req)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		tasks = append(tasks, &queue.Task{
			ID:           job.ID,
			Query:        job.Query,
			Marketplaces: job.Marketplaces,
			Country:      job.Country,
			MaxPages:     job.MaxPages,
			Priority:     job.Priority,
			CreatedAt:    job.CreatedAt,
		})
	}

	m.mu.Lock()
	for _, job := range jobs {
		m.jobs[job.ID] = job
		m.order = append(m.order, job.ID)
	}
	m.mu.Unlock()

	if err := m.batch.PushBatch(tasks); err != nil {
		for _, job := range jobs {
			m.fail(job.ID, err)
		}
		return nil, fmt.Errorf("failed to queue jobs: %w", err)
	}

	snapshots := make([]*Job, len(jobs))
	for i, job := range jobs {
		m.logger.Info("job created", "id", job.ID, "query", job.Query, "marketplaces", job.Marketplaces)
		snapshots[i] = job.snapshot()
	}
	return snapshots, nil
}

func (m *Manager) newJob(req Request) (*Job, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}

	country := strings.ToLower(req.Country)
	if country == "" {
		country = m.opts.Country
	}

	marketplaces := req.Marketplaces
	if len(marketplaces) == 0 {
		marketplaces = m.opts.Marketplaces
	}
	for _, name := range marketplaces {
		if _, err := scraper.New(name, country); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	maxPages := req.MaxPages
	if maxPages < 1 {
		maxPages = m.opts.MaxPages
	}

	return &Job{
		ID:           uuid.New().String(),
		Query:        query,
		Marketplaces: slices.Clone(marketplaces),
		Country:      country,
		MaxPages:     maxPages,
		Priority:     req.Priority,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.snapshot(), nil
}

// ListJobs returns up to limit jobs, newest first. limit <= 0 means all.
func (m *Manager) ListJobs(limit int) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(jobs) == limit {
			break
		}
		jobs = append(jobs, m.jobs[m.order[i]].snapshot())
	}
	return jobs
}

// GetJobProducts returns the products of a finished job sorted by price,
// unpriced products last.
func (m *Manager) GetJobProducts(jobID string) ([]*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	products := slices.Clone(job.products)
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i].Price, products[j].Price
		if a == nil || b == nil {
			return a != nil
		}
		return *a < *b
	})
	return products, nil
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs), QueuedTasks: m.queue.Size()}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.TotalProducts += job.ProductsFound
	}

	if finished := stats.CompletedJobs + stats.FailedJobs; finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}
	return stats
}

func (m *Manager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		fn(job)
	}
}

func (m *Manager) fail(jobID string, err error) {
	now := time.Now()
	m.update(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.Error = err.Error()
		j.CompletedAt = &now
	})
}
