package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/maltedev/marketplace-scraper/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Follow relayed listing events on the Redis stream",
	Long: `Read LISTINGS_SCRAPED events from the listings stream with a consumer
group and log a per-marketplace summary of each finished job.`,
	Args: cobra.NoArgs,
	RunE: runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)

	consumeCmd.Flags().String("stream", "", "stream key (default stream:marketplace_listings)")
	consumeCmd.Flags().String("group", "", "consumer group (default listings-consumer-group)")
	consumeCmd.Flags().String("name", "", "consumer name within the group (default consumer-1)")
}

func runConsume(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", "error", err)
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("connected to Redis", "addr", cfg.Redis.Addr)

	stream, _ := cmd.Flags().GetString("stream")
	group, _ := cmd.Flags().GetString("group")
	name, _ := cmd.Flags().GetString("name")

	consumer := events.NewConsumer(rdb, func(ctx context.Context, p *events.ListingsScrapedPayload) error {
		log.Info("listings scraped",
			"job_id", p.JobID,
			"query", p.Query,
			"country", p.Country,
			"total", p.TotalProducts,
			"stored", p.StoredProducts,
		)
		for _, m := range p.Marketplaces {
			attrs := []any{"job_id", p.JobID, "marketplace", m.Marketplace, "products", m.Products, "with_price", m.WithPrice}
			if m.MinPrice != nil && m.MaxPrice != nil {
				attrs = append(attrs, "min_price", *m.MinPrice, "max_price", *m.MaxPrice)
			}
			log.Info("marketplace summary", attrs...)
		}
		return nil
	}, log, events.ConsumerConfig{Stream: stream, Group: group, Name: name})

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "error", err)
		return err
	}
	return nil
}
