package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tracker/internal/ledger"
	"tracker/internal/log"
	"tracker/internal/sheets"
)

var _ sheets.SummaryExporter = (*Client)(nil)

// Options configures the exporter.
type Options struct {
	SpreadsheetID string
	// SheetName is the base name; each month goes to "<YYYY-MM> <SheetName>".
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

// New creates a Sheets exporter authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Summary"
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := credentials(opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID, "sheet_base", base)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		logger:        logger,
		known:         make(map[string]bool),
	}, nil
}

// credentials prefers inline JSON over a file path.
func credentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ExportMonthSummary replaces the contents of the month's sheet with the
// summary rows, creating the sheet on first export.
func (c *Client) ExportMonthSummary(ctx context.Context, summary ledger.CalendarSummary) (string, error) {
	if !summary.Month.Valid() {
		return "", fmt.Errorf("invalid month %q", summary.Month.Key())
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	title := monthPrefixedName(c.sheetBase, summary.Month)
	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("'%s'!A:D", title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", rng, err)
	}

	rows := sheets.SummaryRows(summary)
	target := fmt.Sprintf("'%s'!A1", title)
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	c.logger.InfoContext(ctx, "Exported month summary",
		log.FieldMonth, summary.Month.Key(),
		"range", resp.UpdatedRange,
		"rows", len(rows))
	return resp.UpdatedRange, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	c.mu.Lock()
	known := c.known[title]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	exists := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			exists = true
			break
		}
	}
	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %q: %w", title, err)
		}
		c.logger.InfoContext(ctx, "Created summary sheet", "title", title)
	}

	c.mu.Lock()
	c.known[title] = true
	c.mu.Unlock()
	return nil
}

// monthPrefixedName returns "<YYYY-MM> <base>" unless base already starts
// with a month key.
func monthPrefixedName(base string, month ledger.Month) string {
	base = strings.TrimSpace(base)
	if len(base) >= 8 && base[7] == ' ' {
		if _, err := ledger.ParseMonth(base[:7]); err == nil {
			return base
		}
	}
	if base == "" {
		return month.Key()
	}
	return fmt.Sprintf("%s %s", month.Key(), base)
}
