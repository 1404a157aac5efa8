package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"finboard/internal/log"
	ports "finboard/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultSheetName = "History"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger
}

var _ ports.HistoryExporter = (*Client)(nil)

// Options configures New. Credentials may be an inline service account JSON
// document or a path to one; when empty, application default credentials
// are used.
type Options struct {
	SpreadsheetID string
	SheetName     string
	Credentials   string
	Logger        *log.Logger
	// Extra client options, appended after the credential options.
	ClientOptions []goption.ClientOption
}

func New(ctx context.Context, o Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(o.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheet := strings.TrimSpace(o.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	logger := o.Logger
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	logger = logger.WithComponent(log.ComponentSheets)

	opts, err := credentialOptions(ctx, o.Credentials, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, o.ClientOptions...)

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        logger,
	}, nil
}

func credentialOptions(ctx context.Context, credentials string, logger *log.Logger) ([]goption.ClientOption, error) {
	credentials = strings.TrimSpace(credentials)
	scopes := goption.WithScopes(gsheet.SpreadsheetsScope)

	switch {
	case credentials == "":
		logger.DebugContext(ctx, "Using application default credentials")
		return []goption.ClientOption{scopes}, nil
	case strings.HasPrefix(credentials, "{"):
		logger.DebugContext(ctx, "Using inline JSON credentials", "size", len(credentials))
		return []goption.ClientOption{goption.WithCredentialsJSON([]byte(credentials)), scopes}, nil
	default:
		data, err := os.ReadFile(credentials)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.DebugContext(ctx, "Read credentials file", "path", credentials, "size", len(data))
		return []goption.ClientOption{goption.WithCredentialsJSON(data), scopes}, nil
	}
}

// EnsureHeader writes the header row when the first row of the sheet is
// empty. An existing first row is left untouched.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:H1", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	vr := &gsheet.ValueRange{Values: [][]any{header}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header to %s: %w", rng, err)
	}
	c.logger.InfoContext(ctx, "Header row written", "sheet", c.sheet)
	return nil
}

func (c *Client) ExportAnalysis(ctx context.Context, row ports.AnalysisRow) (string, error) {
	if strings.TrimSpace(row.RecordID) == "" {
		return "", errors.New("record id is required")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:H", c.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{row.Values()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Analysis exported",
		log.FieldRecordID, row.RecordID,
		"range", ref)
	return ref, nil
}
