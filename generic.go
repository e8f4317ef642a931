// generic.go: type-safe wrappers over the engine API
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypedSnapshot is a Snapshot with typed data.
type TypedSnapshot[T any] struct {
	Data         T
	HasData      bool
	Err          error
	UpdatedAt    time.Time
	IsLoading    bool
	IsValidating bool
	State        State
}

// TypedQuery is a Query whose fetch function returns T.
//
// Example:
//
//	q := fresco.QueryOf(engine, fresco.Key("user", 42), func(ctx context.Context) (User, error) {
//	    return fetchUser(ctx, 42)
//	}, fresco.WithStaleTime(5*time.Second))
//	defer q.Close()
//	if snap := q.Snapshot(); snap.HasData {
//	    fmt.Println(snap.Data.Name)
//	}
type TypedQuery[T any] struct {
	*Query
}

// QueryOf binds a typed consumer to key; see Engine.Query.
func QueryOf[T any](e *Engine, key string, fetch func(ctx context.Context) (T, error), opts ...QueryOption) *TypedQuery[T] {
	return &TypedQuery[T]{Query: e.Query(key, wrapFetch(fetch), opts...)}
}

// Snapshot returns the typed view of the bound key. A value of another
// type (written by an untyped Mutate) is reported as FRESCO_TYPE_MISMATCH.
func (q *TypedQuery[T]) Snapshot() TypedSnapshot[T] {
	return typed[T](q.key, q.Query.Snapshot())
}

// Subscribe registers fn for typed snapshots on every change.
func (q *TypedQuery[T]) Subscribe(fn func(TypedSnapshot[T])) (cancel func()) {
	return q.Query.Subscribe(func(s Snapshot) {
		fn(typed[T](q.key, s))
	})
}

// Mutate applies a typed optimistic update to the bound key.
func (q *TypedQuery[T]) Mutate(fn func(current T, hasCurrent bool) T) error {
	return MutateOf(q.engine, q.key, fn)
}

// SnapshotOf returns the typed view of key.
func SnapshotOf[T any](e *Engine, key string) TypedSnapshot[T] {
	return typed[T](key, e.Snapshot(key))
}

// MutateOf applies a typed optimistic update to key. Data of another type
// is passed to fn as the zero value with hasCurrent false.
func MutateOf[T any](e *Engine, key string, fn func(current T, hasCurrent bool) T) error {
	return e.Mutate(key, func(current any, hasCurrent bool) any {
		v, ok := current.(T)
		return fn(v, hasCurrent && ok)
	})
}

// PrefetchOf is the typed form of Engine.Prefetch.
func PrefetchOf[T any](ctx context.Context, e *Engine, key string, fetch func(ctx context.Context) (T, error), opts ...QueryOption) error {
	return e.Prefetch(ctx, key, wrapFetch(fetch), opts...)
}

// FetchOf is the typed form of Engine.Fetch.
func FetchOf[T any](ctx context.Context, e *Engine, key string, fetch func(ctx context.Context) (T, error), opts ...QueryOption) (T, error) {
	var zero T
	v, err := e.Fetch(ctx, key, wrapFetch(fetch), opts...)
	if err != nil {
		return zero, err
	}
	typedValue, ok := v.(T)
	if !ok {
		return zero, NewErrTypeMismatch(key, v)
	}
	return typedValue, nil
}

func wrapFetch[T any](fetch func(ctx context.Context) (T, error)) FetchFunc {
	if fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

func typed[T any](key string, s Snapshot) TypedSnapshot[T] {
	out := TypedSnapshot[T]{
		HasData:      s.HasData,
		Err:          s.Err,
		UpdatedAt:    s.UpdatedAt,
		IsLoading:    s.IsLoading,
		IsValidating: s.IsValidating,
		State:        s.State,
	}
	if !s.HasData {
		return out
	}
	v, ok := s.Data.(T)
	if !ok {
		out.HasData = false
		if out.Err == nil {
			out.Err = NewErrTypeMismatch(key, s.Data)
		}
		return out
	}
	out.Data = v
	return out
}

// Key joins parts into a cache key separated by ':'.
// Key("user", 42, "posts") == "user:42:posts".
func Key(parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(partToString(p))
	}
	return b.String()
}

// partToString converts a key part to string, avoiding fmt for common types.
func partToString(part any) string {
	switch v := part.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", part)
	}
}
