package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"not found", NotFound("update", "42"), ErrNotFound, true},
		{"wrapped not found", fmt.Errorf("service: %w", NotFound("delete", "1")), ErrNotFound, true},
		{"io is not not-found", StorageIO("write", fs.ErrPermission), ErrNotFound, false},
		{"validation", Validation(FieldError{Path: "title", Message: "required"}), ErrValidation, true},
		{"corruption", Corruption("read", errors.New("bad json")), ErrStorageCorruption, true},
		{"plain error", errors.New("boom"), ErrStorageIO, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestStorageIO_KeepsCause(t *testing.T) {
	err := StorageIO("rename", fs.ErrPermission)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, KindStorageIO, KindOf(err))
	assert.Contains(t, err.Error(), "rename")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.Equal(t, "StorageIOFailure", KindStorageIO.String())
}

func TestDetailsOf(t *testing.T) {
	details := []FieldError{{Path: "status", Message: "must be one of todo, in_progress, done"}}
	err := fmt.Errorf("create: %w", Validation(details...))

	assert.Equal(t, details, DetailsOf(err))
	assert.Nil(t, DetailsOf(NotFound("get", "1")))
	assert.Contains(t, err.Error(), "status: must be one of")
}
