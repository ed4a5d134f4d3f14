package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

type TaskService struct {
	repo  repo.TaskRepository
	now   func() time.Time
	newID func() string
}

type Option func(*TaskService)

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *TaskService) { s.newID = newID }
}

func NewTaskService(repo repo.TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns tasks matching every set filter field, in storage order.
func (s *TaskService) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	tasks, err := s.repo.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if matches(t, filter) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matches(t model.Task, f model.TaskFilter) bool {
	if f.Status != nil && *f.Status != "" && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && *f.Priority != "" && t.Priority != *f.Priority {
		return false
	}
	if f.Search != nil && *f.Search != "" {
		hay := strings.ToLower(t.Title + " " + t.Description)
		if !strings.Contains(hay, strings.ToLower(*f.Search)) {
			return false
		}
	}
	return true
}

func (s *TaskService) Get(ctx context.Context, id string) (model.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if t == nil {
		return model.Task{}, apperr.NotFound("get", id)
	}
	return *t, nil
}

func (s *TaskService) Create(ctx context.Context, in model.CreateTaskInput) (model.Task, error) {
	if err := validateCreate(in); err != nil { // Валидация на случай вызова в обход HTTP-валидатора
		return model.Task{}, err
	}

	now := s.now()
	t := model.Task{
		ID:        s.newID(),
		Title:     in.Title,
		Status:    model.StatusTodo,
		Priority:  model.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != nil {
		t.Description = normalizeDescription(*in.Description)
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.DueDate != nil {
		d := in.DueDate.UTC()
		t.DueDate = &d
	}

	return s.repo.Save(ctx, t)
}

// Update merges in over the stored task. Absent fields keep their value;
// DueDate follows its own unchanged/cleared/set action. Read, merge and write
// happen as one store step, so concurrent updates of one task do not lose
// each other's fields.
func (s *TaskService) Update(ctx context.Context, id string, in model.UpdateTaskInput) (model.Task, error) {
	if err := validateUpdate(in); err != nil {
		return model.Task{}, err
	}

	return s.repo.Modify(ctx, id, func(t *model.Task) error {
		if in.Title != nil {
			t.Title = *in.Title
		}
		if in.Description != nil {
			t.Description = normalizeDescription(*in.Description)
		}
		if in.Status != nil {
			t.Status = *in.Status
		}
		if in.Priority != nil {
			t.Priority = *in.Priority
		}
		t.DueDate = in.DueDate.Apply(t.DueDate)

		t.UpdatedAt = s.now()
		if t.UpdatedAt.Before(t.CreatedAt) { // часы ушли назад
			t.UpdatedAt = t.CreatedAt
		}
		return nil
	})
}

// Delete fails with NotFound when the task is already gone, also when two
// deletes of one id race.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	return s.repo.Remove(ctx, id)
}

// normalizeDescription trims; an empty result means "no description".
func normalizeDescription(d string) string {
	return strings.TrimSpace(d)
}

func validateCreate(in model.CreateTaskInput) error {
	var details []apperr.FieldError
	if in.Title == "" {
		details = append(details, apperr.FieldError{Path: "title", Message: "title is required"})
	}
	details = append(details, validateCommon(in.Description, in.Status, in.Priority)...)
	if len(details) > 0 {
		return apperr.Validation(details...)
	}
	return nil
}

func validateUpdate(in model.UpdateTaskInput) error {
	var details []apperr.FieldError
	if in.Title != nil && *in.Title == "" {
		details = append(details, apperr.FieldError{Path: "title", Message: "title must not be empty"})
	}
	details = append(details, validateCommon(in.Description, in.Status, in.Priority)...)
	if len(details) > 0 {
		return apperr.Validation(details...)
	}
	return nil
}

func validateCommon(description *string, status *model.Status, priority *model.Priority) []apperr.FieldError {
	var details []apperr.FieldError
	if description != nil && utf8.RuneCountInString(*description) > model.MaxDescriptionLength {
		details = append(details, apperr.FieldError{
			Path:    "description",
			Message: fmt.Sprintf("description must be at most %d characters", model.MaxDescriptionLength),
		})
	}
	if status != nil && !status.Valid() {
		details = append(details, apperr.FieldError{Path: "status", Message: "status must be one of todo, in_progress, done"})
	}
	if priority != nil && !priority.Valid() {
		details = append(details, apperr.FieldError{Path: "priority", Message: "priority must be one of low, medium, high"})
	}
	return details
}
