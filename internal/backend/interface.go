package backend

import (
	"context"

	"tracker/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the record service and what is needed to run it.
type BackendResult struct {
	Records *services.RecordService
	Cleanup CleanupFunc
	// Ready checks the backing store; always non-nil.
	Ready func(context.Context) error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend: directory of <kind>.json seed files. Empty starts empty.
	DataDirectory string

	// SQLite specific
	SQLiteDBPath string

	// Optional change notifications, for any backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
