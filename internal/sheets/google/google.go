package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"dobkap/internal/core"
	ports "dobkap/internal/sheets"
)

// DefaultSheetName is the ledger sheet base name; the income year is
// prefixed to it.
const DefaultSheetName = "Filings"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

var _ ports.FilingExporter = (*Client)(nil)

// Credentials selects the spreadsheet and the OAuth material used to reach
// it. Inline JSON wins over files.
type Credentials struct {
	SpreadsheetID string
	SheetName     string
	ClientJSON    string
	ClientFile    string
	TokenJSON     string
	TokenFile     string
}

func New(ctx context.Context, creds Credentials) (*Client, error) {
	spreadsheetID := strings.TrimSpace(creds.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(creds.SheetName)
	if base == "" {
		base = DefaultSheetName
	}

	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

func readSecret(inline, file, name string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", name, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("missing %s", name)
	}
}

// newSheetsService builds a service authorised by a stored OAuth token.
func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	clientJSON, err := readSecret(creds.ClientJSON, creds.ClientFile, "oauth client")
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readSecret(creds.TokenJSON, creds.TokenFile, "oauth token")
	if err != nil {
		return nil, err
	}

	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tok, err := parseToken(tokenJSON)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	service, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// ExportFiling writes f to the ledger sheet of its income year, replacing
// the row of an earlier export.
func (c *Client) ExportFiling(ctx context.Context, f core.Filing) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if f.ID == 0 {
		return "", errors.New("filing has no id")
	}
	sheet := yearPrefixedName(c.sheetBase, f.IncomeDate.Year())

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read ids of sheet %s: %w", sheet, err)
	}

	if len(resp.Values) == 0 {
		if err := c.write(ctx, fmt.Sprintf("%s!A1:H1", sheet), headerRow()); err != nil {
			return "", fmt.Errorf("write header of sheet %s: %w", sheet, err)
		}
		resp.Values = [][]any{headerRow()[:1]}
	}

	row := findRow(resp.Values, f.ID)
	if row == 0 {
		row = len(resp.Values) + 1
	}
	ref := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	if err := c.write(ctx, ref, ports.Row(f)); err != nil {
		return "", fmt.Errorf("write filing %d to %s: %w", f.ID, ref, err)
	}
	return ref, nil
}

func (c *Client) write(ctx context.Context, rng string, cells []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{cells}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func headerRow() []any {
	out := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		out[i] = h
	}
	return out
}

// findRow returns the 1-based row whose first cell is id, or 0.
func findRow(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 1
		}
	}
	return 0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func parseToken(b []byte) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token has neither access nor refresh token")
	}
	return tok, nil
}
