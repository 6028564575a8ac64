// Package gsheets is a sheet.Backend over the Google Sheets API v4.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"eduface/internal/sheet"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON []byte
	CredentialsFile string
	// RequestsPerMin throttles calls client-side; the default API quota is
	// 60 requests per minute per user.
	RequestsPerMin int
}

// Client talks to one spreadsheet.
type Client struct {
	svc     *sheets.Service
	id      string
	limiter *rate.Limiter

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// Open authorizes with the service account and checks that the spreadsheet
// can be read. Extra options are appended after the credential options.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("gsheets: spreadsheet id required")
	}

	var clientOpts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		clientOpts = append(clientOpts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, option.WithScopes(sheets.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gsheets: create service: %w", err)
	}

	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 60
	}
	burst := perMin / 6
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		svc:      svc,
		id:       cfg.SpreadsheetID,
		limiter:  rate.NewLimiter(rate.Limit(float64(perMin)/60), burst),
		sheetIDs: make(map[string]int64),
	}
	if _, err := c.Sheets(ctx); err != nil {
		return nil, fmt.Errorf("gsheets: open spreadsheet %q: %w", cfg.SpreadsheetID, err)
	}
	return c, nil
}

func (c *Client) Name() string { return "gsheets" }

func (c *Client) Sheets(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Get(c.id).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	titles := make([]string, 0, len(resp.Sheets))
	c.mu.Lock()
	c.sheetIDs = make(map[string]int64, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		titles = append(titles, s.Properties.Title)
		c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
	}
	c.mu.Unlock()
	return titles, nil
}

func (c *Client) Rows(ctx context.Context, name string) ([][]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.id, quote(name)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (c *Client) Append(ctx context.Context, name string, rows [][]string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		values[i] = cells
	}
	_, err := c.svc.Spreadsheets.Values.Append(c.id, quote(name), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return classify(err)
}

func (c *Client) UpdateCell(ctx context.Context, name string, row, col int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	rng := quote(name) + "!" + cell
	_, err = c.svc.Spreadsheets.Values.Update(c.id, rng, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return classify(err)
}

func (c *Client) DeleteRow(ctx context.Context, name string, row int) error {
	sheetID, err := c.sheetID(ctx, name)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row - 1),
					EndIndex:        int64(row),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.id, req).Context(ctx).Do()
	return classify(err)
}

func (c *Client) AddSheet(ctx context.Context, name string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: name},
			},
		}},
	}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.id, req).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		c.mu.Lock()
		c.sheetIDs[name] = resp.Replies[0].AddSheet.Properties.SheetId
		c.mu.Unlock()
	}
	return nil
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (c *Client) Close() error { return nil }

func (c *Client) sheetID(ctx context.Context, name string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	if _, err := c.Sheets(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sheetIDs[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", sheet.ErrTableNotFound, name)
}

// quote turns a sheet title into an A1 range prefix.
func quote(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// classify tags API errors so the adapter can tell retryable failures from
// permanent ones.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", sheet.ErrRateLimited, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %w", sheet.ErrTransient, err)
		case gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"):
			return fmt.Errorf("%w: %w", sheet.ErrTableNotFound, err)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %w", sheet.ErrPermanent, err)
		}
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %w", sheet.ErrTransient, err)
	}
	return err
}
