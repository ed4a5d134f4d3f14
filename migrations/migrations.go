// Package migrations holds the SQL schema of the postgres store.
package migrations

import _ "embed"

// CreateTasks is 001_create_tasks.up.sql; it is safe to apply repeatedly.
//
//go:embed 001_create_tasks.up.sql
var CreateTasks string
