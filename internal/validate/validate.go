// Package validate checks request payloads against the task JSON schemas
// before they reach the service.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
	"github.com/BuzzLyutic/taskboard/internal/model"
)

const (
	createSchemaURL = "mem://taskboard/create-task.json"
	updateSchemaURL = "mem://taskboard/update-task.json"
)

const createSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["title"],
	"properties": {
		"title":       {"type": "string", "minLength": 1},
		"description": {"type": "string", "maxLength": 2000},
		"status":      {"enum": ["todo", "in_progress", "done"]},
		"priority":    {"enum": ["low", "medium", "high"]},
		"dueDate":     {"type": "string", "format": "date-time"}
	}
}`

// Update accepts the same fields, none required, and dueDate may be null.
const updateSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"title":       {"type": "string", "minLength": 1},
		"description": {"type": "string", "maxLength": 2000},
		"status":      {"enum": ["todo", "in_progress", "done"]},
		"priority":    {"enum": ["low", "medium", "high"]},
		"dueDate":     {"type": ["string", "null"], "format": "date-time"}
	}
}`

// taskFields are the only keys decoded into inputs. encoding/json matches
// keys case-insensitively, so "DUEDATE" must not reach the decoder.
var taskFields = []string{"title", "description", "status", "priority", "dueDate"}

type Validator struct {
	create *jsonschema.Schema
	update *jsonschema.Schema
}

func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	if err := compiler.AddResource(createSchemaURL, strings.NewReader(createSchema)); err != nil {
		return nil, fmt.Errorf("add create schema: %w", err)
	}
	if err := compiler.AddResource(updateSchemaURL, strings.NewReader(updateSchema)); err != nil {
		return nil, fmt.Errorf("add update schema: %w", err)
	}

	create, err := compiler.Compile(createSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile create schema: %w", err)
	}
	update, err := compiler.Compile(updateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile update schema: %w", err)
	}

	return &Validator{create: create, update: update}, nil
}

// CreateTask validates body and decodes it into a create input.
func (v *Validator) CreateTask(body []byte) (model.CreateTaskInput, error) {
	var in model.CreateTaskInput
	doc, err := check(v.create, body, []string{"title"})
	if err != nil {
		return in, err
	}
	if err := decodeKnown(doc, &in); err != nil {
		return in, decodeError(err)
	}
	return in, nil
}

// UpdateTask validates body and decodes it into a partial update.
func (v *Validator) UpdateTask(body []byte) (model.UpdateTaskInput, error) {
	var in model.UpdateTaskInput
	doc, err := check(v.update, body, nil)
	if err != nil {
		return in, err
	}
	if err := decodeKnown(doc, &in); err != nil {
		return in, decodeError(err)
	}
	return in, nil
}

// ListFilter parses list query parameters. Empty values are treated as absent.
func (v *Validator) ListFilter(q url.Values) (model.TaskFilter, error) {
	var (
		filter  model.TaskFilter
		details []apperr.FieldError
	)

	if s := q.Get("status"); s != "" {
		status := model.Status(s)
		if status.Valid() {
			filter.Status = &status
		} else {
			details = append(details, apperr.FieldError{Path: "status", Message: "status must be one of todo, in_progress, done"})
		}
	}
	if p := q.Get("priority"); p != "" {
		priority := model.Priority(p)
		if priority.Valid() {
			filter.Priority = &priority
		} else {
			details = append(details, apperr.FieldError{Path: "priority", Message: "priority must be one of low, medium, high"})
		}
	}
	if search := q.Get("search"); search != "" {
		filter.Search = &search
	}

	if len(details) > 0 {
		return model.TaskFilter{}, apperr.Validation(details...)
	}
	return filter, nil
}

// check returns the decoded document once it satisfies schema.
func check(schema *jsonschema.Schema, body []byte, required []string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, apperr.Validation(apperr.FieldError{Path: "body", Message: "invalid JSON: " + err.Error()})
	}
	if dec.More() {
		return nil, apperr.Validation(apperr.FieldError{Path: "body", Message: "invalid JSON: multiple JSON values"})
	}

	err := schema.Validate(doc)
	if err == nil {
		return doc, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, apperr.Validation(apperr.FieldError{Path: "body", Message: err.Error()})
	}

	var details []apperr.FieldError
	collect(ve, doc, required, &details)
	if len(details) == 0 {
		details = append(details, apperr.FieldError{Path: "body", Message: ve.Message})
	}
	sort.SliceStable(details, func(i, j int) bool { return details[i].Path < details[j].Path })
	return nil, apperr.Validation(details...)
}

// decodeKnown decodes only the exact schema keys of doc into out.
func decodeKnown(doc any, out any) error {
	obj, _ := doc.(map[string]any)
	known := make(map[string]any, len(taskFields))
	for _, k := range taskFields {
		if v, ok := obj[k]; ok {
			known[k] = v
		}
	}
	data, err := json.Marshal(known)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// collect walks the cause tree and keeps one detail per leaf error.
func collect(ve *jsonschema.ValidationError, doc any, required []string, out *[]apperr.FieldError) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collect(cause, doc, required, out)
		}
		return
	}

	if strings.HasSuffix(ve.KeywordLocation, "/required") {
		obj, _ := doc.(map[string]any)
		for _, name := range required {
			if _, ok := obj[name]; !ok {
				*out = append(*out, apperr.FieldError{Path: name, Message: name + " is required"})
			}
		}
		return
	}

	*out = append(*out, apperr.FieldError{Path: pointerToPath(ve.InstanceLocation), Message: ve.Message})
}

// pointerToPath turns "/dueDate" into "dueDate"; the document root is "body".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "body"
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Validation(apperr.FieldError{Path: typeErr.Field, Message: err.Error()})
	}
	var parseErr *time.ParseError
	if errors.As(err, &parseErr) {
		return apperr.Validation(apperr.FieldError{Path: "dueDate", Message: "dueDate must be an ISO datetime string"})
	}
	return apperr.Validation(apperr.FieldError{Path: "body", Message: err.Error()})
}
