package google

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dobkap/internal/core"
	"dobkap/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Credentials{})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNew_InvalidClientJSON(t *testing.T) {
	_, err := New(context.Background(), Credentials{
		SpreadsheetID: "test-id",
		ClientJSON:    "invalid-json",
		TokenJSON:     `{"access_token":"test"}`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth config")
}

func TestNew_MissingTokenFile(t *testing.T) {
	_, err := New(context.Background(), Credentials{
		SpreadsheetID: "test-id",
		ClientJSON:    `{"installed":{"client_id":"x","client_secret":"y","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`,
		TokenFile:     filepath.Join(t.TempDir(), "missing.json"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read oauth token file")
}

func TestParseToken(t *testing.T) {
	tok, err := parseToken([]byte(`{"access_token":"a","refresh_token":"r","token_type":"Bearer"}`))
	require.NoError(t, err)
	assert.Equal(t, "r", tok.RefreshToken)

	_, err = parseToken([]byte(`{}`))
	assert.Error(t, err)

	_, err = parseToken([]byte(`not json`))
	assert.Error(t, err)
}

func TestExportFiling_ServiceNotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: DefaultSheetName}
	_, err := c.ExportFiling(context.Background(), core.Filing{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestYearPrefixedName(t *testing.T) {
	assert.Equal(t, "2024 Filings", yearPrefixedName("Filings", 2024))
	assert.Equal(t, "2023 Filings", yearPrefixedName("2023 Filings", 2024))
	assert.Equal(t, "2024 Tax ledger", yearPrefixedName("  Tax ledger ", 2024))
	assert.Equal(t, "", yearPrefixedName("", 2024))
}

func TestFindRow(t *testing.T) {
	values := [][]any{
		{"ID"},
		{"7"},
		{},
		{float64(12)},
		{" 31 "},
	}
	assert.Equal(t, 2, findRow(values, 7))
	assert.Equal(t, 4, findRow(values, 12))
	assert.Equal(t, 5, findRow(values, 31))
	assert.Equal(t, 0, findRow(values, 8))
}

func TestHeaderAndRowAlign(t *testing.T) {
	f := core.Filing{
		ID:               5,
		Kind:             core.KindDividend,
		PayingEntity:     "Apple Inc",
		IncomeDate:       time.Date(2023, 1, 12, 0, 0, 0, 0, time.UTC),
		FilingDeadline:   time.Date(2023, 2, 13, 0, 0, 0, 0, time.UTC),
		TaxPayable:       core.Money{Cents: 58585},
		Status:           core.FilingFiled,
		PaymentReference: "97 123",
	}
	row := sheets.Row(f)
	require.Len(t, row, len(sheets.Header))
	assert.Len(t, headerRow(), 8)
	assert.Equal(t, int64(5), row[0])
	assert.Equal(t, "2023-02-13", row[1])
	assert.Equal(t, "585.85", row[5])
	assert.True(t, strings.EqualFold("filed", row[6].(string)))
}
