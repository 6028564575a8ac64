// Package sheet maps logical tables onto a spreadsheet-like Backend.
//
// Every table is a sheet whose first row holds the column headers and whose
// following rows hold data. The Adapter resolves a table by any of its
// accepted sheet names, re-reads the whole sheet on each List, and wraps
// every backend call with a timeout, retries with exponential backoff,
// metrics and structured logging. It keeps no copy of the data.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"eduface/internal/logging"
)

// Table is a logical table and the sheet titles it may be stored under, in
// lookup priority order.
type Table struct {
	Key   string
	Names []string
}

var (
	Users      = Table{Key: "users", Names: []string{"Users", "User"}}
	Routines   = Table{Key: "routines", Names: []string{"Routines", "Routine"}}
	Attendance = Table{Key: "attendance", Names: []string{"Attendance", "Attendances"}}
	Results    = Table{Key: "results", Names: []string{"Results", "Result"}}
)

// Subject returns the per-subject attendance table for name. Subject sheets
// are looked up by their exact title.
func Subject(name string) Table {
	return Table{Key: "subject:" + name, Names: []string{name}}
}

func (t Table) String() string {
	if len(t.Names) > 0 {
		return t.Names[0]
	}
	return t.Key
}

// Row is one data row of a table.
type Row struct {
	// Index is the 1-based sheet row; the first data row is 2.
	Index int
	// Values maps each header to the cell under it. Every header is present,
	// cells past the end of a short row read as "".
	Values map[string]string
}

// Options tunes call handling.
type Options struct {
	CallTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 16 * time.Second
	}
	return o
}

// Adapter is the record store adapter over a Backend.
type Adapter struct {
	backend Backend
	opts    Options

	mu       sync.RWMutex
	resolved map[string]string
}

// NewAdapter wraps backend. The adapter does not take ownership; callers
// close the backend on shutdown.
func NewAdapter(backend Backend, opts Options) *Adapter {
	return &Adapter{
		backend:  backend,
		opts:     opts.withDefaults(),
		resolved: make(map[string]string),
	}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend { return a.backend }

// Resolve returns the sheet title backing t.
func (a *Adapter) Resolve(ctx context.Context, t Table) (string, error) {
	a.mu.RLock()
	title, ok := a.resolved[t.Key]
	a.mu.RUnlock()
	if ok {
		return title, nil
	}

	var titles []string
	err := a.do(ctx, "sheets", t.String(), true, func(ctx context.Context) error {
		var err error
		titles, err = a.backend.Sheets(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	present := make(map[string]bool, len(titles))
	for _, s := range titles {
		present[s] = true
	}
	for _, name := range t.Names {
		if present[name] {
			a.mu.Lock()
			a.resolved[t.Key] = name
			a.mu.Unlock()
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s", ErrTableNotFound, strings.Join(t.Names, ", "))
}

// Exists reports whether t resolves to a sheet.
func (a *Adapter) Exists(ctx context.Context, t Table) (bool, error) {
	_, err := a.Resolve(ctx, t)
	if errors.Is(err, ErrTableNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (a *Adapter) forget(t Table) {
	a.mu.Lock()
	delete(a.resolved, t.Key)
	a.mu.Unlock()
}

func (a *Adapter) rows(ctx context.Context, t Table) ([][]string, error) {
	title, err := a.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	err = a.do(ctx, "rows", title, true, func(ctx context.Context) error {
		var err error
		rows, err = a.backend.Rows(ctx, title)
		return err
	})
	if errors.Is(err, ErrTableNotFound) {
		a.forget(t)
	}
	return rows, err
}

// Header returns the trimmed header row of t; nil for an empty sheet.
func (a *Adapter) Header(ctx context.Context, t Table) ([]string, error) {
	rows, err := a.rows(ctx, t)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return trimAll(rows[0]), nil
}

// List re-reads t and returns its data rows in sheet order.
func (a *Adapter) List(ctx context.Context, t Table) ([]Row, error) {
	rows, err := a.rows(ctx, t)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	header := trimAll(rows[0])
	out := make([]Row, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		values := make(map[string]string, len(header))
		for col, name := range header {
			if name == "" {
				continue
			}
			if _, dup := values[name]; dup {
				continue
			}
			if col < len(cells) {
				values[name] = cells[col]
			} else {
				values[name] = ""
			}
		}
		out = append(out, Row{Index: i + 2, Values: values})
	}
	return out, nil
}

// Append writes rows at the end of t.
func (a *Adapter) Append(ctx context.Context, t Table, rows ...[]string) error {
	if len(rows) == 0 {
		return nil
	}
	title, err := a.Resolve(ctx, t)
	if err != nil {
		return err
	}
	return a.do(ctx, "append", title, false, func(ctx context.Context) error {
		return a.backend.Append(ctx, title, rows)
	})
}

// UpdateCell overwrites one data cell. row counts the header as row 1, so
// the first data row is 2; col is 1-based.
func (a *Adapter) UpdateCell(ctx context.Context, t Table, row, col int, value string) error {
	if row < 2 || col < 1 {
		return fmt.Errorf("%w: cell (%d,%d) is outside the data area", ErrPermanent, row, col)
	}
	title, err := a.Resolve(ctx, t)
	if err != nil {
		return err
	}
	return a.do(ctx, "update_cell", title, true, func(ctx context.Context) error {
		return a.backend.UpdateCell(ctx, title, row, col, value)
	})
}

// DeleteRow removes one data row; rows below it shift up.
func (a *Adapter) DeleteRow(ctx context.Context, t Table, row int) error {
	if row < 2 {
		return fmt.Errorf("%w: row %d is not a data row", ErrPermanent, row)
	}
	title, err := a.Resolve(ctx, t)
	if err != nil {
		return err
	}
	return a.do(ctx, "delete_row", title, false, func(ctx context.Context) error {
		return a.backend.DeleteRow(ctx, title, row)
	})
}

// EnsureTable creates a sheet named name with header when it does not exist
// yet. It reports whether the sheet was created.
func (a *Adapter) EnsureTable(ctx context.Context, t Table, header []string) (bool, error) {
	ok, err := a.Exists(ctx, t)
	if err != nil || ok {
		return false, err
	}
	name := t.String()
	if err := a.do(ctx, "add_sheet", name, false, func(ctx context.Context) error {
		return a.backend.AddSheet(ctx, name)
	}); err != nil {
		return false, err
	}
	a.mu.Lock()
	a.resolved[t.Key] = name
	a.mu.Unlock()
	if len(header) > 0 {
		if err := a.Append(ctx, t, header); err != nil {
			return true, err
		}
	}
	return true, nil
}

// do runs fn with a per-call timeout, retrying transient failures with
// exponential backoff, and records the outcome.
func (a *Adapter) do(ctx context.Context, op, table string, idempotent bool, fn func(ctx context.Context) error) error {
	start := time.Now()
	backend := a.backend.Name()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.opts.InitialBackoff
	eb.MaxInterval = a.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(a.opts.MaxRetries)), ctx)

	attempt := 0
	var last error
	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			storeRetries.WithLabelValues(backend, op).Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()

		last = classify(fn(callCtx))
		if last == nil {
			return nil
		}
		if retryable(last, idempotent) {
			logging.FromContext(ctx).Warn("store call failed, retrying",
				"backend", backend, "op", op, "table", table, "attempt", attempt, "error", last)
			return last
		}
		return backoff.Permanent(last)
	}, policy)
	if err != nil && last != nil && !errors.Is(err, last) {
		// The context ended while waiting between attempts.
		err = fmt.Errorf("%w (last attempt: %w)", classify(err), last)
	}

	observe(backend, op, err, time.Since(start))
	if err != nil {
		if !errors.Is(err, ErrTableNotFound) {
			logging.FromContext(ctx).Error("store call failed",
				"backend", backend, "op", op, "table", table, "attempts", attempt, "kind", Kind(err), "error", err)
		}
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	return nil
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
