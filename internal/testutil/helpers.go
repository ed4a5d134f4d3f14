// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

// SetupFileRepo создает файловое хранилище во временном каталоге теста
func SetupFileRepo(t *testing.T) *repo.FileRepo {
	t.Helper()

	r, err := repo.NewFileRepo(filepath.Join(t.TempDir(), "data", "tasks.json"), zap.NewNop())
	require.NoError(t, err, "failed to open file repo")
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// SeedTasks writes the given tasks as the whole collection and returns them.
func SeedTasks(t *testing.T, r repo.TaskRepository, tasks ...model.Task) []model.Task {
	t.Helper()

	require.NoError(t, r.WriteAll(context.Background(), tasks), "failed to seed tasks")
	return tasks
}

// NewTask builds a valid stored task with deterministic timestamps.
func NewTask(id, title string, status model.Status, priority model.Priority) model.Task {
	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	return model.Task{
		ID:        id,
		Title:     title,
		Status:    status,
		Priority:  priority,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
