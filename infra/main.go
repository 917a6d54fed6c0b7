package infra

import (
	"fmt"

	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/infra/produce"
)

// Infra bundles every external connection the service holds. It is built
// once at process start and passed by reference; components never reach for
// process-global state.
type Infra struct {
	Postgres       *PostgresClient
	Redis          *RedisClient
	RabbitMQ       *RabbitMQClient
	Minio          *MinioClient
	Logger         *LoggerClient
	StyleProcessor *StyleProcessorClient
	Produce        *produce.Produce
}

func InitInfra(cfg *config.Config) (*Infra, error) {
	logger, err := InitLoggerClient(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	postgres, err := InitPostgresClient(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}

	redis, err := InitRedisClient(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	rabbitMQ, err := InitRabbitMQClient(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	minio, err := InitMinioClient(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
	}

	styleProcessor, err := InitStyleProcessorClient(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize style processor client: %w", err)
	}

	produceService, err := produce.InitProduce(rabbitMQ.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize produce service: %w", err)
	}

	return &Infra{
		Postgres:       postgres,
		Redis:          redis,
		RabbitMQ:       rabbitMQ,
		Minio:          minio,
		Logger:         logger,
		StyleProcessor: styleProcessor,
		Produce:        produceService,
	}, nil
}
