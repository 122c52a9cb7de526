package main

import (
	"context"
	"os"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/internal/fetcher"
	"github.com/modelmeta/hf-crawler/internal/pipeline"
	"github.com/modelmeta/hf-crawler/pkg/kafka"
	"github.com/modelmeta/hf-crawler/pkg/log"
)

func main() {
	ctx := context.Background()

	loader, _ := cfg.NewViperLoader()
	logger, _ := log.NewCslLogger()

	config, err := loader.Load()
	if err != nil {
		logger.Error(ctx, "Failed to load config: %v", err)
		os.Exit(1)
	}

	pageFetcher, err := fetcher.NewFetcher(logger, config)
	if err != nil {
		logger.Error(ctx, "Failed to build fetcher: %v", err)
		os.Exit(1)
	}

	var producer *kafka.Producer
	if config.Kafka.Enabled {
		producer, err = kafka.NewProducer(config, logger, config.Kafka.Producer.TopicModel)
		if err != nil {
			logger.Error(ctx, "Failed to build producer: %v", err)
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error(ctx, "Error closing producer: %v", err)
			}
		}()
	}

	driver, err := pipeline.NewDriver(logger, config, pageFetcher, producer)
	if err != nil {
		logger.Error(ctx, "Failed to build pipeline: %v", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Starting %s %s", config.App.Name, config.App.Version)
	if _, err := driver.Run(ctx); err != nil {
		logger.Error(ctx, "Crawl failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Successfully!")
}
