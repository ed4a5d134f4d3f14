package repo

import (
	"context"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

// TaskRepository хранит коллекцию задач целиком; бизнес-правил здесь нет
type TaskRepository interface {
	ReadAll(ctx context.Context) ([]model.Task, error)
	WriteAll(ctx context.Context, tasks []model.Task) error
	// FindByID returns nil, nil when no task has the id.
	FindByID(ctx context.Context, id string) (*model.Task, error)
	Save(ctx context.Context, t model.Task) (model.Task, error)
	Update(ctx context.Context, t model.Task) (model.Task, error)
	// DeleteByID is a no-op for unknown ids.
	DeleteByID(ctx context.Context, id string) error

	// Modify reads the task, applies fn and stores the result as one
	// serialized step. NotFound when absent; an error from fn aborts without
	// writing. The id cannot be changed by fn.
	Modify(ctx context.Context, id string, fn func(t *model.Task) error) (model.Task, error)
	// Remove deletes the task as one serialized step; NotFound when absent.
	Remove(ctx context.Context, id string) error
}

func indexOf(tasks []model.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
