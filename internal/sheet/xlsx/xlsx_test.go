package xlsx

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"eduface/internal/sheet"
)

func TestBook_PersistsToDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "portal.xlsx")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := b.AddSheet(ctx, "Math"); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(ctx, "Math", [][]string{{"Student ID", "Date", "Status"}, {"S1", "2024-01-01", "Present"}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	rows, err := reopened.Rows(ctx, "Math")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"Student ID", "Date", "Status"}, {"S1", "2024-01-01", "Present"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Rows() = %v, want %v", rows, want)
	}
}

func TestBook_MissingSheet(t *testing.T) {
	b := New()
	ctx := context.Background()
	if _, err := b.Rows(ctx, "Nope"); !errors.Is(err, sheet.ErrTableNotFound) {
		t.Errorf("Rows() error = %v, want ErrTableNotFound", err)
	}
	if err := b.Append(ctx, "Nope", [][]string{{"x"}}); !errors.Is(err, sheet.ErrTableNotFound) {
		t.Errorf("Append() error = %v, want ErrTableNotFound", err)
	}
}

func TestBook_CanceledContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Sheets(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Sheets() error = %v, want context.Canceled", err)
	}
}
