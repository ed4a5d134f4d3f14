package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
	"github.com/BuzzLyutic/taskboard/internal/service"
	"github.com/BuzzLyutic/taskboard/internal/validate"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

// MaxBodyBytes caps request bodies for create and update.
const MaxBodyBytes = 1 << 20

type TaskHandler struct {
	service   *service.TaskService
	validator *validate.Validator
	logger    *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, validator *validate.Validator, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service:   srv,
		validator: validator,
		logger:    logger,
	}
}

func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	in, err := h.validator.CreateTask(body)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	task, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/tasks/"+task.ID)
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := h.validator.ListFilter(r.URL.Query())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	tasks, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	in, err := h.validator.UpdateTask(body)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	task, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.NoContent(w)
}

// readBody reads at most MaxBodyBytes; on failure the response is already written.
func (h *TaskHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return nil, false
		}
		h.logger.Warn("failed to read request body", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return body, true
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		details := apperr.DetailsOf(err)
		if details == nil {
			details = []apperr.FieldError{}
		}
		respond.ErrorWithDetails(w, r, http.StatusBadRequest, "ValidationError", details)
	case errors.Is(err, apperr.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "Task not found")
	default:
		h.logger.Error("internal error",
			zap.Error(err),
			zap.Stringer("kind", apperr.KindOf(err)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		respond.Error(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
