// Package db defines the database writer contract the pipeline writes
// observation rows through, plus reference Writer implementations.
package db

import (
	"context"
	"fmt"
	"reflect"

	"github.com/iancoleman/strcase"
)

// Writer is the contract the pipeline writes every observation row
// through: one table name plus a flattened row per call. Implementations
// are responsible for batching and transaction boundaries.
type Writer interface {
	WriteRow(ctx context.Context, table string, row map[string]interface{}) error
}

// dbTableFieldName is excluded from RowOf's output: it is metadata naming
// the destination table, not a column.
const dbTableFieldName = "DBTable"

// RowOf flattens an observation struct into a column-name -> value map,
// walking its fields in declaration order (recursing into embedded structs
// so promoted fields like the shared Header appear too) and converting Go
// field names to snake_case via github.com/iancoleman/strcase — the same
// library the teacher uses for the reverse conversion in
// parser/switch.go. Pointer fields are dereferenced; a nil pointer becomes
// a nil map value rather than being omitted, so every row has the same key
// set regardless of which optional fields were populated.
func RowOf(observation interface{}) map[string]interface{} {
	row := make(map[string]interface{})
	v := reflect.ValueOf(observation)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	flattenInto(row, v)
	return row
}

func flattenInto(row map[string]interface{}, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Name == dbTableFieldName {
			continue
		}
		fv := v.Field(i)

		if field.Anonymous && fv.Kind() == reflect.Struct {
			flattenInto(row, fv)
			continue
		}

		row[strcase.ToSnake(field.Name)] = columnValue(fv)
	}
}

func columnValue(fv reflect.Value) interface{} {
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	}
	return fv.Interface()
}

// ErrCommitRow wraps the underlying Sink error when a batch of buffered
// rows fails to commit, mirroring the teacher's row.ErrCommitRow exactly so
// that errors.Is/errors.As unwrap the same way.
type ErrCommitRow struct {
	Err error
}

func (e ErrCommitRow) Error() string {
	return fmt.Sprintf("db: failed to commit row(s): %v", e.Err)
}

func (e ErrCommitRow) Unwrap() error {
	return e.Err
}
