package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/testutil"
)

// MockTaskRepository - мок репозитория
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) ReadAll(ctx context.Context) ([]model.Task, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) WriteAll(ctx context.Context, tasks []model.Task) error {
	args := m.Called(ctx, tasks)
	return args.Error(0)
}

func (m *MockTaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	args := m.Called(ctx, id)
	var t *model.Task
	if v := args.Get(0); v != nil {
		t = v.(*model.Task)
	}
	return t, args.Error(1)
}

func (m *MockTaskRepository) Save(ctx context.Context, t model.Task) (model.Task, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, t model.Task) (model.Task, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskRepository) DeleteByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Modify applies fn to the task configured as the first return value.
func (m *MockTaskRepository) Modify(ctx context.Context, id string, fn func(t *model.Task) error) (model.Task, error) {
	args := m.Called(ctx, id)
	if err := args.Error(1); err != nil {
		return model.Task{}, err
	}
	t := args.Get(0).(model.Task)
	if err := fn(&t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (m *MockTaskRepository) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// slowModifyRepo stretches every Modify so that concurrent calls overlap.
type slowModifyRepo struct {
	repo.TaskRepository
	delay time.Duration
}

func (r slowModifyRepo) Modify(ctx context.Context, id string, fn func(t *model.Task) error) (model.Task, error) {
	return r.TaskRepository.Modify(ctx, id, func(t *model.Task) error {
		time.Sleep(r.delay)
		return fn(t)
	})
}

func ptr[T any](v T) *T { return &v }

var start = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*TaskService, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(start)
	svc := NewTaskService(testutil.SetupFileRepo(t), WithClock(clock.Now))
	return svc, clock
}

func TestTaskService_Create(t *testing.T) {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   model.CreateTaskInput
		wantErr error
		check   func(*testing.T, model.Task)
	}{
		{
			name:  "defaults applied",
			input: model.CreateTaskInput{Title: "Write report"},
			check: func(t *testing.T, got model.Task) {
				assert.Equal(t, model.StatusTodo, got.Status)
				assert.Equal(t, model.PriorityMedium, got.Priority)
				assert.Empty(t, got.Description)
				assert.Nil(t, got.DueDate)
			},
		},
		{
			name: "all fields",
			input: model.CreateTaskInput{
				Title:       "Ship",
				Description: ptr("  with notes  "),
				Status:      ptr(model.StatusInProgress),
				Priority:    ptr(model.PriorityHigh),
				DueDate:     &due,
			},
			check: func(t *testing.T, got model.Task) {
				assert.Equal(t, "with notes", got.Description)
				assert.Equal(t, model.StatusInProgress, got.Status)
				assert.Equal(t, model.PriorityHigh, got.Priority)
				require.NotNil(t, got.DueDate)
				assert.True(t, due.Equal(*got.DueDate))
			},
		},
		{
			name:  "blank description stored as absent",
			input: model.CreateTaskInput{Title: "x", Description: ptr("   \n\t")},
			check: func(t *testing.T, got model.Task) {
				assert.Empty(t, got.Description)
			},
		},
		{
			name:    "validation error - empty title",
			input:   model.CreateTaskInput{Title: ""},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "validation error - unknown status",
			input:   model.CreateTaskInput{Title: "x", Status: ptr(model.Status("blocked"))},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "validation error - description too long",
			input:   model.CreateTaskInput{Title: "x", Description: ptr(strings.Repeat("я", model.MaxDescriptionLength+1))},
			wantErr: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)

			got, err := svc.Create(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, start, got.CreatedAt)
			assert.Equal(t, got.CreatedAt, got.UpdatedAt)
			tt.check(t, got)

			stored, err := svc.Get(context.Background(), got.ID)
			require.NoError(t, err)
			assert.Equal(t, got, stored)
		})
	}
}

func TestTaskService_Create_FreshIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 25; i++ {
		task, err := svc.Create(ctx, model.CreateTaskInput{Title: "t"})
		require.NoError(t, err)
		assert.False(t, seen[task.ID], "id %s reused", task.ID)
		seen[task.ID] = true
	}
}

func TestTaskService_Create_DescriptionLimitCountsCharacters(t *testing.T) {
	svc, _ := newTestService(t)

	// 2000 двухбайтовых символов укладываются в лимит
	_, err := svc.Create(context.Background(), model.CreateTaskInput{
		Title:       "x",
		Description: ptr(strings.Repeat("я", model.MaxDescriptionLength)),
	})
	assert.NoError(t, err)
}

func TestTaskService_List(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	alphaReport := testutil.NewTask("1", "Alpha report", model.StatusDone, model.PriorityLow)
	alphaDraft := testutil.NewTask("2", "Alpha draft", model.StatusTodo, model.PriorityHigh)
	beta := testutil.NewTask("3", "Beta", model.StatusDone, model.PriorityHigh)
	beta.Description = "mentions ALPHA in the body"
	gamma := testutil.NewTask("4", "Gamma", model.StatusInProgress, model.PriorityMedium)
	testutil.SeedTasks(t, svc.repo, alphaReport, alphaDraft, beta, gamma)

	tests := []struct {
		name   string
		filter model.TaskFilter
		want   []string
	}{
		{name: "no filter keeps storage order", filter: model.TaskFilter{}, want: []string{"1", "2", "3", "4"}},
		{name: "status", filter: model.TaskFilter{Status: ptr(model.StatusDone)}, want: []string{"1", "3"}},
		{name: "priority", filter: model.TaskFilter{Priority: ptr(model.PriorityHigh)}, want: []string{"2", "3"}},
		{name: "search is case-insensitive over title and description", filter: model.TaskFilter{Search: ptr("alpha")}, want: []string{"1", "2", "3"}},
		{
			name:   "status and search",
			filter: model.TaskFilter{Status: ptr(model.StatusDone), Search: ptr("alpha r")},
			want:   []string{"1"},
		},
		{
			name:   "all three",
			filter: model.TaskFilter{Status: ptr(model.StatusDone), Priority: ptr(model.PriorityHigh), Search: ptr("alpha")},
			want:   []string{"3"},
		},
		{name: "empty search is no constraint", filter: model.TaskFilter{Search: ptr("")}, want: []string{"1", "2", "3", "4"}},
		{name: "nothing matches", filter: model.TaskFilter{Search: ptr("delta")}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, task := range got {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTaskService_List_StatusAndSearchExample(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	report, err := svc.Create(ctx, model.CreateTaskInput{Title: "Alpha report", Status: ptr(model.StatusDone)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, model.CreateTaskInput{Title: "Alpha draft", Status: ptr(model.StatusTodo)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, model.CreateTaskInput{Title: "Beta", Status: ptr(model.StatusDone)})
	require.NoError(t, err)

	got, err := svc.List(ctx, model.TaskFilter{Status: ptr(model.StatusDone), Search: ptr("alpha")})
	require.NoError(t, err)
	assert.Equal(t, []model.Task{report}, got)
}

func TestTaskService_Get_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskService_Update_PreservesUntouchedFields(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, model.CreateTaskInput{
		Title:       "Original",
		Description: ptr("keep me"),
		Priority:    ptr(model.PriorityHigh),
		DueDate:     &due,
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	updated, err := svc.Update(ctx, created.ID, model.UpdateTaskInput{Status: ptr(model.StatusDone)})
	require.NoError(t, err)

	assert.Equal(t, model.StatusDone, updated.Status)
	assert.Equal(t, created.Title, updated.Title)
	assert.Equal(t, created.Description, updated.Description)
	assert.Equal(t, created.Priority, updated.Priority)
	assert.Equal(t, created.DueDate, updated.DueDate)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestTaskService_Update_DueDateTriState(t *testing.T) {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2026, 7, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		dueDate model.DueDateUpdate
		want    *time.Time
	}{
		{name: "omitted preserves", dueDate: model.KeepDueDate(), want: &due},
		{name: "null clears", dueDate: model.ClearDueDate(), want: nil},
		{name: "value replaces", dueDate: model.SetDueDate(next), want: &next},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()

			created, err := svc.Create(ctx, model.CreateTaskInput{Title: "t", DueDate: &due})
			require.NoError(t, err)

			updated, err := svc.Update(ctx, created.ID, model.UpdateTaskInput{DueDate: tt.dueDate})
			require.NoError(t, err)
			assert.Equal(t, tt.want, updated.DueDate)

			stored, err := svc.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.DueDate)
		})
	}
}

func TestTaskService_Update_Description(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateTaskInput{Title: "t", Description: ptr("old")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, model.UpdateTaskInput{Description: ptr("  new  ")})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Description)

	updated, err = svc.Update(ctx, created.ID, model.UpdateTaskInput{Description: ptr("   ")})
	require.NoError(t, err)
	assert.Empty(t, updated.Description, "blank description clears it")

	updated, err = svc.Update(ctx, created.ID, model.UpdateTaskInput{Title: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Empty(t, updated.Description)
}

func TestTaskService_Update_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "missing", model.UpdateTaskInput{Title: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	created, err := svc.Create(ctx, model.CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, model.UpdateTaskInput{Title: ptr("")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Update(ctx, created.ID, model.UpdateTaskInput{Priority: ptr(model.Priority("urgent"))})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTaskService_Update_ClockSkewKeepsOrdering(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	clock.Advance(-time.Hour)
	updated, err := svc.Update(ctx, created.ID, model.UpdateTaskInput{Status: ptr(model.StatusDone)})
	require.NoError(t, err)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
}

func TestTaskService_Delete_Twice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), apperr.ErrNotFound)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskService_ConcurrentCreatesAreNotLost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, model.CreateTaskInput{Title: "concurrent"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tasks, err := svc.List(ctx, model.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, n)
}

func TestTaskService_ConcurrentUpdatesOfOneTaskKeepBothFields(t *testing.T) {
	clock := testutil.NewClock(start)
	fileRepo := testutil.SetupFileRepo(t)
	svc := NewTaskService(slowModifyRepo{TaskRepository: fileRepo, delay: 20 * time.Millisecond}, WithClock(clock.Now))
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateTaskInput{Title: "old"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Update(ctx, created.ID, model.UpdateTaskInput{Title: ptr("new title")})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Update(ctx, created.ID, model.UpdateTaskInput{Status: ptr(model.StatusDone)})
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, model.StatusDone, got.Status)
}

func TestTaskService_ConcurrentDeletesOfOneTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Delete(ctx, created.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
	assert.Equal(t, 1, succeeded, "exactly one delete wins")
}

func TestTaskService_WithMockRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("create uses injected id and clock", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("Save", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
			return task.ID == "task-1" && task.CreatedAt.Equal(start) && task.UpdatedAt.Equal(start)
		})).Return(model.Task{ID: "task-1"}, nil)

		svc := NewTaskService(mockRepo,
			WithIDGenerator(testutil.SequentialIDs("task")),
			WithClock(func() time.Time { return start }),
		)
		got, err := svc.Create(ctx, model.CreateTaskInput{Title: "x"})
		require.NoError(t, err)
		assert.Equal(t, "task-1", got.ID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("delete of missing id reports not found", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("Remove", mock.Anything, "nope").Return(apperr.NotFound("delete", "nope"))

		svc := NewTaskService(mockRepo)
		err := svc.Delete(ctx, "nope")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		mockRepo.AssertNotCalled(t, "DeleteByID", mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("update merges inside a single modify", func(t *testing.T) {
		stored := testutil.NewTask("task-1", "Original", model.StatusTodo, model.PriorityLow)
		mockRepo := new(MockTaskRepository)
		mockRepo.On("Modify", mock.Anything, "task-1").Return(stored, nil)

		later := stored.CreatedAt.Add(time.Hour)
		svc := NewTaskService(mockRepo, WithClock(func() time.Time { return later }))
		got, err := svc.Update(ctx, "task-1", model.UpdateTaskInput{Status: ptr(model.StatusDone)})
		require.NoError(t, err)

		assert.Equal(t, "Original", got.Title)
		assert.Equal(t, model.StatusDone, got.Status)
		assert.Equal(t, later, got.UpdatedAt)
		mockRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("storage failure propagates", func(t *testing.T) {
		ioErr := apperr.StorageIO("read", errors.New("disk gone"))
		mockRepo := new(MockTaskRepository)
		mockRepo.On("ReadAll", mock.Anything).Return([]model.Task(nil), ioErr)

		svc := NewTaskService(mockRepo)
		_, err := svc.List(ctx, model.TaskFilter{})
		assert.ErrorIs(t, err, apperr.ErrStorageIO)
		mockRepo.AssertExpectations(t)
	})

	t.Run("invalid input never reaches storage", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		svc := NewTaskService(mockRepo)

		_, err := svc.Create(ctx, model.CreateTaskInput{Title: ""})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, []apperr.FieldError{{Path: "title", Message: "title is required"}}, apperr.DetailsOf(err))
		mockRepo.AssertExpectations(t)
	})
}
