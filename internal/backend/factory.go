package backend

import (
	"context"
	"fmt"

	"tracker/internal/amqp"
	"tracker/internal/log"
	"tracker/internal/services"
	"tracker/internal/storage"
	"tracker/internal/store"
	"tracker/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store, attaches the AMQP publisher
// when configured and wraps both in a RecordService. A broker that cannot
// be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		st, err = f.createSQLiteStore(config)
	case MemoryBackend:
		st, err = f.createMemoryStore(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without notifications", log.FieldError, err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	records := services.NewRecordService(st, publisher, f.logger)
	f.logger.InfoContext(ctx, "Initialized backend",
		log.FieldBackend, config.Type,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Records: records,
		Cleanup: records.Close,
		Ready:   readiness(st),
	}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (store.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (store.Store, error) {
	if config.DataDirectory == "" {
		f.logger.Info("Initialized empty memory store")
		return memory.New(), nil
	}
	st, err := memory.NewFromFiles(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory store: %w", err)
	}
	f.logger.Info("Initialized memory store", "data_directory", config.DataDirectory)
	return st, nil
}

func readiness(st store.Store) func(context.Context) error {
	if p, ok := st.(interface{ Ping(context.Context) error }); ok {
		return p.Ping
	}
	return func(context.Context) error { return nil }
}
