// The consumer reads scraped model records off Kafka, flattens each
// one into (model, commit) rows, and batch-upserts them into MySQL.
// It is the persistence half of the crawl pipeline and runs as its
// own process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/internal/model"
	"github.com/modelmeta/hf-crawler/pkg/db"
	"github.com/modelmeta/hf-crawler/pkg/kafka"
	"github.com/modelmeta/hf-crawler/pkg/log"
)

func main() {
	loader, _ := cfg.NewViperLoader()
	logger, _ := log.NewCslLogger()

	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mysql, _ := db.NewMysql(config)
	rowModel, _ := model.NewModelRow(config, logger, mysql)
	if err := mysql.Migrate(rowModel); err != nil {
		logger.Error(ctx, "Failed to migrate database: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := startModelConsumer(ctx, config, logger, rowModel); err != nil {
		logger.Error(ctx, "Failed to start model consumer: %v", err)
		os.Exit(1)
	}

	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

func startModelConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, rowModel *model.ModelRow) error {
	consumer, err := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicModel, "model-consumer-group")
	if err != nil {
		return err
	}

	batchSize := 100
	batchTimeout := 5 * time.Second
	rows := make(chan []model.ModelRow, batchSize)

	go processBatchedRows(ctx, rows, batchSize, batchTimeout, logger, rowModel)

	consumer.RegisterHandler("model", func(data []byte) error {
		var meta model.ModelMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("failed to unmarshal model message: %w", err)
		}

		select {
		case rows <- model.FlattenMeta(&meta):
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Model consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Model consumer started successfully")
	return nil
}

// processBatchedRows accumulates flattened rows and flushes them to
// the database when the batch fills up or the timeout fires.
func processBatchedRows(ctx context.Context, rows <-chan []model.ModelRow, batchSize int,
	batchTimeout time.Duration, logger log.Logger, rowModel *model.ModelRow) {

	var batch []model.ModelRow
	timer := time.NewTimer(batchTimeout)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := rowModel.CreateBatch(batch); err != nil {
			logger.Error(ctx, "Failed to save batch of %d rows: %v", len(batch), err)
		} else {
			logger.Info(ctx, "Saved batch of %d rows", len(batch))
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case modelRows := <-rows:
			batch = append(batch, modelRows...)
			if len(batch) >= batchSize {
				flush()
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(batchTimeout)
		}
	}
}
