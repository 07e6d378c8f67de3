package database

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/marketplace-scraper/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxEvent_Prepare(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("fills defaults", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "search_job",
			AggregateID:   "job-1",
			EventType:     "LISTINGS_SCRAPED",
			Payload:       json.RawMessage(`{"job_id":"job-1"}`),
		}

		require.NoError(t, event.prepare(now))
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, ListingsStream, event.TargetStream)
		assert.Equal(t, now, event.CreatedAt)
		require.NotNil(t, event.NextRetryAt)
		assert.Equal(t, now, *event.NextRetryAt)
	})

	t.Run("validate required fields", func(t *testing.T) {
		testCases := []struct {
			name  string
			event *OutboxEvent
		}{
			{
				name: "missing aggregate type",
				event: &OutboxEvent{
					AggregateID: "job-1",
					EventType:   "LISTINGS_SCRAPED",
					Payload:     json.RawMessage(`{}`),
				},
			},
			{
				name: "missing aggregate id",
				event: &OutboxEvent{
					AggregateType: "search_job",
					EventType:     "LISTINGS_SCRAPED",
					Payload:       json.RawMessage(`{}`),
				},
			},
			{
				name: "missing event type",
				event: &OutboxEvent{
					AggregateType: "search_job",
					AggregateID:   "job-1",
					Payload:       json.RawMessage(`{}`),
				},
			},
			{
				name: "invalid payload",
				event: &OutboxEvent{
					AggregateType: "search_job",
					AggregateID:   "job-1",
					EventType:     "LISTINGS_SCRAPED",
					Payload:       json.RawMessage(`{"job_id":`),
				},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				err := tc.event.prepare(now)
				assert.ErrorIs(t, err, ErrInvalidEvent)
				assert.Equal(t, uuid.Nil, tc.event.ID)
			})
		}
	})
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{8, 256 * time.Second},
		{9, 300 * time.Second},
		{40, 300 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryBackoff(tt.retry), "retry %d", tt.retry)
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, OutboxStatusFailed, nextStatus(1))
	assert.Equal(t, OutboxStatusFailed, nextStatus(MaxRetryCount-1))
	assert.Equal(t, OutboxStatusDeadLetter, nextStatus(MaxRetryCount))
}

func TestOutboxRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)
	event := &OutboxEvent{
		AggregateType: "search_job",
		AggregateID:   "job-" + uuid.NewString(),
		EventType:     "LISTINGS_SCRAPED",
		Payload:       json.RawMessage(`{"products":1}`),
		RetryCount:    MaxRetryCount - 1,
	}

	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	})
	require.NoError(t, err)

	events, err := repo.GetPending(ctx, 100)
	require.NoError(t, err)
	found := false
	for _, e := range events {
		found = found || e.ID == event.ID
	}
	assert.True(t, found)

	require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

	var status string
	var retryCount int
	err = db.pool.QueryRow(ctx,
		"SELECT status, retry_count FROM outbox_event WHERE id = $1",
		event.ID).Scan(&status, &retryCount)
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusDeadLetter, status)
	assert.Equal(t, MaxRetryCount, retryCount)

	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
}

// setupTestDB connects to the database named by TEST_DB_HOST and friends,
// skipping the test when none is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}

	db, err := New(context.Background(), config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Name:     os.Getenv("TEST_DB_NAME"),
		MaxConns: 2,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}
