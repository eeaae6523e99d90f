package store

import (
	"context"
	"fmt"
	"strings"
)

// Request is one statement RPC. An empty Session runs the statement outside
// any transaction.
type Request struct {
	Session string `json:"session,omitempty"`
	SQL     string `json:"sql"`
	Params  []any  `json:"params"`
}

// Transport sends a single statement to the store and returns the raw JSON
// envelope it answered with.
type Transport interface {
	Execute(ctx context.Context, req Request) ([]byte, error)
}

// Statement is one parameterised SQL statement. ExpectID marks inserts whose
// generated id the caller needs.
type Statement struct {
	SQL      string
	Params   []any
	ExpectID bool
}

func NewStatement(sql string, params ...any) Statement {
	if params == nil {
		params = []any{}
	}
	return Statement{SQL: sql, Params: params}
}

func NewInsert(sql string, params ...any) Statement {
	st := NewStatement(sql, params...)
	st.ExpectID = true
	return st
}

// StatusError is a non-2xx answer from a remote store.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "store status error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("store status: %d", e.Status)
	}
	return fmt.Sprintf("store status: %d: %s", e.Status, msg)
}
