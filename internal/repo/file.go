package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/worker"
)

var errMissing = errors.New("tasks file does not exist")

// FileRepo keeps the whole collection as a JSON array in one file.
//
// Every write cycle runs on a single writer queue and under an exclusive
// advisory lock on "<file>.lock", so concurrent writers in this process and
// in other processes are serialized. Readers take no lock: the file is only
// ever replaced by rename, so a reader sees either the old or the new
// content.
type FileRepo struct {
	path   string
	lock   *flock.Flock
	writes *worker.Queue
	logger *zap.Logger
}

func NewFileRepo(path string, logger *zap.Logger) (*FileRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperr.StorageIO("open", err)
	}

	q := worker.NewQueue(logger)
	q.Start(context.Background())

	return &FileRepo{
		path:   path,
		lock:   flock.New(path + ".lock"),
		writes: q,
		logger: logger,
	}, nil
}

func (r *FileRepo) Path() string { return r.path }

// Close stops the writer queue. Further writes fail with a StorageIO error.
func (r *FileRepo) Close() error {
	r.writes.Stop()
	return nil
}

func (r *FileRepo) ReadAll(ctx context.Context) ([]model.Task, error) {
	tasks, err := r.load()
	if err == nil {
		return tasks, nil
	}
	if !errors.Is(err, errMissing) && !errors.Is(err, apperr.ErrStorageCorruption) {
		return nil, err
	}

	// файла нет или он битый: чиним под тем же замком, что и запись
	err = r.mutate(ctx, "read", func() error {
		var err error
		tasks, err = r.loadLocked()
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *FileRepo) WriteAll(ctx context.Context, tasks []model.Task) error {
	snapshot := append([]model.Task(nil), tasks...)
	return r.mutate(ctx, "write", func() error {
		return r.store(snapshot)
	})
}

func (r *FileRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	tasks, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(tasks, id); i >= 0 {
		t := tasks[i]
		return &t, nil
	}
	return nil, nil
}

func (r *FileRepo) Save(ctx context.Context, t model.Task) (model.Task, error) {
	err := r.mutate(ctx, "save", func() error {
		tasks, err := r.loadLocked()
		if err != nil {
			return err
		}
		if indexOf(tasks, t.ID) >= 0 {
			return fmt.Errorf("save: duplicate task id %q", t.ID)
		}
		return r.store(append(tasks, t))
	})
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (r *FileRepo) Update(ctx context.Context, t model.Task) (model.Task, error) {
	err := r.mutate(ctx, "update", func() error {
		tasks, err := r.loadLocked()
		if err != nil {
			return err
		}
		i := indexOf(tasks, t.ID)
		if i < 0 {
			return apperr.NotFound("update", t.ID)
		}
		tasks[i] = t
		return r.store(tasks)
	})
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (r *FileRepo) DeleteByID(ctx context.Context, id string) error {
	return r.mutate(ctx, "delete", func() error {
		tasks, err := r.loadLocked()
		if err != nil {
			return err
		}
		next := make([]model.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.ID != id {
				next = append(next, t)
			}
		}
		return r.store(next)
	})
}

func (r *FileRepo) Modify(ctx context.Context, id string, fn func(t *model.Task) error) (model.Task, error) {
	var out model.Task
	err := r.mutate(ctx, "update", func() error {
		tasks, err := r.loadLocked()
		if err != nil {
			return err
		}
		i := indexOf(tasks, id)
		if i < 0 {
			return apperr.NotFound("update", id)
		}

		t := tasks[i]
		if err := fn(&t); err != nil {
			return err
		}
		t.ID = id
		tasks[i] = t
		if err := r.store(tasks); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return out, nil
}

func (r *FileRepo) Remove(ctx context.Context, id string) error {
	return r.mutate(ctx, "delete", func() error {
		tasks, err := r.loadLocked()
		if err != nil {
			return err
		}
		i := indexOf(tasks, id)
		if i < 0 {
			return apperr.NotFound("delete", id)
		}
		return r.store(append(tasks[:i], tasks[i+1:]...))
	})
}

// mutate runs fn on the writer queue while holding the file lock.
func (r *FileRepo) mutate(ctx context.Context, op string, fn func() error) error {
	err := r.writes.Do(ctx, op, func() error {
		if err := r.lock.Lock(); err != nil {
			return apperr.StorageIO("lock", err)
		}
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				r.logger.Error("failed to release tasks file lock", zap.String("path", r.lock.Path()), zap.Error(err))
			}
		}()
		return fn()
	})
	if errors.Is(err, worker.ErrStopped) {
		return apperr.StorageIO(op, err)
	}
	return err
}

func (r *FileRepo) load() ([]model.Task, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errMissing
	}
	if err != nil {
		return nil, apperr.StorageIO("read", err)
	}

	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, apperr.Corruption("read", err)
	}
	if tasks == nil { // "null" и прочие не-массивы
		return nil, apperr.Corruption("read", errors.New("top-level value is not an array"))
	}
	return tasks, nil
}

// loadLocked must only run inside mutate. A missing or corrupted file is
// reset to an empty collection.
func (r *FileRepo) loadLocked() ([]model.Task, error) {
	tasks, err := r.load()
	switch {
	case err == nil:
		return tasks, nil
	case errors.Is(err, errMissing):
		r.logger.Info("initializing tasks file", zap.String("path", r.path))
	case errors.Is(err, apperr.ErrStorageCorruption):
		r.logger.Warn("tasks file is corrupted, resetting to empty collection",
			zap.String("path", r.path),
			zap.Error(err),
		)
	default:
		return nil, err
	}

	empty := []model.Task{}
	if err := r.store(empty); err != nil {
		return nil, err
	}
	return empty, nil
}

func (r *FileRepo) store(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return writeFileAtomic(r.path, data, 0o644)
}
