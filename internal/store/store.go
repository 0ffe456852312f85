// Package store persists the history of terminal tasks so it survives
// restarts of the CLI.
package store

import (
	"context"
	"errors"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// ErrNotFound is returned when a task record is not found.
var ErrNotFound = errors.New("task record not found")

// Store defines the persistence operations for task history.
type Store interface {
	Insert(ctx context.Context, rec task.Record) error
	Get(ctx context.Context, id string) (task.Record, error)
	// List returns up to limit records for machine, oldest first.
	// A non-positive limit returns all of them.
	List(ctx context.Context, machine string, limit int) ([]task.Record, error)
	CountByState(ctx context.Context, machine string) (map[string]int, error)
	Close() error
}
