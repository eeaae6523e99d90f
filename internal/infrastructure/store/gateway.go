package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/resilience"
)

const defaultRollbackTimeout = 5 * time.Second

// AttemptObserver is told about every statement attempt, including the ones
// that succeed.
type AttemptObserver func(ctx context.Context, operation string, attempt int, err error)

type Option func(*options)

type options struct {
	observer        AttemptObserver
	retryHook       resilience.RetryHook
	rollbackTimeout time.Duration
	newSession      func() string
}

func WithAttemptObserver(observer AttemptObserver) Option {
	return func(o *options) { o.observer = observer }
}

func WithRetryHook(hook resilience.RetryHook) Option {
	return func(o *options) { o.retryHook = hook }
}

func WithRollbackTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.rollbackTimeout = timeout
		}
	}
}

// Gateway gives transactional semantics over a store that only understands one
// statement per call. Transactions are emulated with BEGIN/COMMIT/ROLLBACK
// statements sharing a session id.
type Gateway struct {
	transport       Transport
	executor        *resilience.Executor
	rollbackTimeout time.Duration
	newSession      func() string
}

func New(transport Transport, cfg resilience.Config, opts ...Option) *Gateway {
	o := options{
		rollbackTimeout: defaultRollbackTimeout,
		newSession:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var execOpts []resilience.Option
	if o.observer != nil {
		execOpts = append(execOpts, resilience.WithAttemptHook(resilience.AttemptHook(o.observer)))
	}
	if o.retryHook != nil {
		execOpts = append(execOpts, resilience.WithRetryHook(o.retryHook))
	}

	return &Gateway{
		transport:       transport,
		executor:        resilience.NewExecutor(cfg, execOpts...),
		rollbackTimeout: o.rollbackTimeout,
		newSession:      o.newSession,
	}
}

// Result of a batch: InsertedIDs holds one id per ExpectID statement in
// statement order, RowsAffected sums all statements.
type Result struct {
	InsertedIDs  []int64
	RowsAffected int64
}

// ExecuteTransactionally runs statements in order inside one transaction. Either
// all of them take effect or none do.
func (g *Gateway) ExecuteTransactionally(ctx context.Context, statements []Statement) (Result, error) {
	var result Result
	err := g.Transaction(ctx, func(tx *Tx) error {
		for idx, st := range statements {
			outcome, err := tx.run(ctx, st)
			if err != nil {
				return fmt.Errorf("statement %d: %w", idx, err)
			}
			if st.ExpectID {
				result.InsertedIDs = append(result.InsertedIDs, outcome.id)
			}
			result.RowsAffected += outcome.rowsAffected
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Transaction runs fn inside BEGIN/COMMIT. Any error from fn, or from COMMIT,
// triggers ROLLBACK and is returned unchanged in kind.
func (g *Gateway) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx := &Tx{gateway: g, session: g.newSession()}

	if _, err := g.statement(ctx, tx.session, NewStatement("BEGIN"), "store.begin"); err != nil {
		return persistenceError("store.begin", err)
	}

	if err := fn(tx); err != nil {
		g.rollback(ctx, tx.session, err)
		return persistenceError("store.transaction", err)
	}

	if _, err := g.statement(ctx, tx.session, NewStatement("COMMIT"), "store.commit"); err != nil {
		g.rollback(ctx, tx.session, err)
		return persistenceError("store.commit", err)
	}
	return nil
}

// Query runs a read outside any transaction.
func (g *Gateway) Query(ctx context.Context, st Statement) ([]Row, error) {
	env, err := g.statement(ctx, "", st, "store.query")
	if err != nil {
		return nil, persistenceError("store.query", err)
	}
	return env.rows(), nil
}

// Exec runs a single write outside any transaction and returns rows affected.
func (g *Gateway) Exec(ctx context.Context, st Statement) (int64, error) {
	env, err := g.statement(ctx, "", st, "store.exec")
	if err != nil {
		return 0, persistenceError("store.exec", err)
	}
	return env.rowsAffected(), nil
}

func (g *Gateway) statement(ctx context.Context, session string, st Statement, operation string) (envelope, error) {
	params := st.Params
	if params == nil {
		params = []any{}
	}
	req := Request{Session: session, SQL: st.SQL, Params: params}

	var env envelope
	err := g.executor.Execute(ctx, operation, func(callCtx context.Context) error {
		body, err := g.transport.Execute(callCtx, req)
		if err != nil {
			return markStatementTimeout(callCtx, err)
		}
		parsed, err := parseEnvelope(body)
		if err != nil {
			return err
		}
		env = parsed
		return nil
	}, classifyStoreError)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (g *Gateway) rollback(ctx context.Context, session string, cause error) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.rollbackTimeout)
	defer cancel()

	_, err := g.transport.Execute(rbCtx, Request{Session: session, SQL: "ROLLBACK", Params: []any{}})
	if err != nil {
		slog.Warn("store.rollback_failed", "session", session, "cause", cause, "error", err)
		return
	}
	slog.Info("store.rolled_back", "session", session, "cause", cause)
}

// Tx is a transaction in progress. Statements run in call order; each one is
// retried on transient failures on its own.
type Tx struct {
	gateway *Gateway
	session string
}

type outcome struct {
	id           int64
	rowsAffected int64
}

func (t *Tx) Session() string {
	return t.session
}

// Exec runs a statement and returns the number of rows it changed.
func (t *Tx) Exec(ctx context.Context, st Statement) (int64, error) {
	out, err := t.run(ctx, st)
	return out.rowsAffected, err
}

// Insert runs an insert and returns the generated id. A missing id is fatal.
func (t *Tx) Insert(ctx context.Context, st Statement) (int64, error) {
	st.ExpectID = true
	out, err := t.run(ctx, st)
	return out.id, err
}

func (t *Tx) Query(ctx context.Context, st Statement) ([]Row, error) {
	env, err := t.gateway.statement(ctx, t.session, st, "store.query")
	if err != nil {
		return nil, err
	}
	return env.rows(), nil
}

func (t *Tx) run(ctx context.Context, st Statement) (outcome, error) {
	operation := "store.exec"
	if st.ExpectID {
		operation = "store.insert"
	}
	env, err := t.gateway.statement(ctx, t.session, st, operation)
	if err != nil {
		return outcome{}, err
	}

	out := outcome{rowsAffected: env.rowsAffected()}
	if st.ExpectID {
		id, ok := env.insertedID()
		if !ok {
			slog.Error("store.missing_inserted_id", "session", t.session, "sql", firstLine(st.SQL))
			return outcome{}, ErrMissingID
		}
		out.id = id
		if out.rowsAffected == 0 {
			out.rowsAffected = 1
		}
	}
	return out, nil
}

func firstLine(sql string) string {
	s := strings.TrimSpace(sql)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
