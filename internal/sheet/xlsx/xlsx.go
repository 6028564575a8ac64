// Package xlsx is a sheet.Backend over a local Excel workbook. With a path
// it persists after every write; without one it lives in memory only.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"eduface/internal/sheet"
)

// Book is a workbook-backed store.
type Book struct {
	mu   sync.Mutex
	f    *excelize.File
	path string
}

// New returns an in-memory workbook.
func New() *Book {
	return &Book{f: excelize.NewFile()}
}

// Open opens the workbook at path, creating it when it does not exist.
func Open(path string) (*Book, error) {
	if path == "" {
		return New(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		b := &Book{f: excelize.NewFile(), path: path}
		if err := b.f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("create workbook %s: %w", path, err)
		}
		return b, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Book{f: f, path: path}, nil
}

func (b *Book) Name() string { return "xlsx" }

func (b *Book) Sheets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.f.GetSheetList(), nil
}

func (b *Book) Rows(ctx context.Context, name string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.has(name) {
		return nil, fmt.Errorf("%w: %s", sheet.ErrTableNotFound, name)
	}
	return b.f.GetRows(name)
}

func (b *Book) Append(ctx context.Context, name string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.has(name) {
		return fmt.Errorf("%w: %s", sheet.ErrTableNotFound, name)
	}
	existing, err := b.f.GetRows(name)
	if err != nil {
		return err
	}
	next := len(existing) + 1
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := b.f.SetSheetRow(name, cell, &values); err != nil {
			return err
		}
	}
	return b.save()
}

func (b *Book) UpdateCell(ctx context.Context, name string, row, col int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.has(name) {
		return fmt.Errorf("%w: %s", sheet.ErrTableNotFound, name)
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := b.f.SetCellStr(name, cell, value); err != nil {
		return err
	}
	return b.save()
}

func (b *Book) DeleteRow(ctx context.Context, name string, row int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.has(name) {
		return fmt.Errorf("%w: %s", sheet.ErrTableNotFound, name)
	}
	if err := b.f.RemoveRow(name, row); err != nil {
		return err
	}
	return b.save()
}

func (b *Book) AddSheet(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.has(name) {
		return nil
	}
	if _, err := b.f.NewSheet(name); err != nil {
		return err
	}
	return b.save()
}

// Close saves pending changes and releases the workbook.
func (b *Book) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.save(); err != nil {
		return err
	}
	return b.f.Close()
}

func (b *Book) has(name string) bool {
	for _, s := range b.f.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

func (b *Book) save() error {
	if b.path == "" {
		return nil
	}
	return b.f.SaveAs(b.path)
}
