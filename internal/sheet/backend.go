package sheet

import "context"

// Backend is a tabular store made of named sheets. Rows and columns are
// 1-based; row 1 of every sheet holds the column headers.
//
// Drivers return ErrTableNotFound for unknown sheets and may tag their own
// errors with ErrTransient or ErrRateLimited; anything untagged is treated as
// permanent by the Adapter.
type Backend interface {
	// Name identifies the driver in logs and metrics.
	Name() string
	// Sheets lists sheet titles in workbook order.
	Sheets(ctx context.Context) ([]string, error)
	// Rows returns every non-trailing row of a sheet, header included.
	Rows(ctx context.Context, sheet string) ([][]string, error)
	// Append writes rows after the last used row.
	Append(ctx context.Context, sheet string, rows [][]string) error
	UpdateCell(ctx context.Context, sheet string, row, col int, value string) error
	DeleteRow(ctx context.Context, sheet string, row int) error
	AddSheet(ctx context.Context, sheet string) error
	Close() error
}
