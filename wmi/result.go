// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmi

import (
	"fmt"
	"time"
)

// Result is the outcome of one query.
type Result struct {
	Namespace string
	Query     string

	// Fields holds the latest extracted value of each field.
	Fields map[string]any
	// Records holds one row per enumerated record, in order.
	Records []map[string]any
	// Skipped counts field extractions that failed.
	Skipped int
}

func newResult(namespace, query string) *Result {
	return &Result{
		Namespace: namespace,
		Query:     query,
		Fields:    make(map[string]any),
		Records:   []map[string]any{},
	}
}

func (r *Result) add(row map[string]any) {
	r.Records = append(r.Records, row)
	for k, v := range row {
		r.Fields[k] = v
	}
}

// normalize converts field values into plain scalars that encode
// cleanly as JSON and protobuf Values.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalize(x[i])
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
