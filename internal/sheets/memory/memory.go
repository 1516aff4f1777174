// Package memory is an in-process filing ledger, used when no spreadsheet
// is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"dobkap/internal/core"
	"dobkap/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]any
	byID map[int64]int
}

var _ sheets.FilingExporter = (*Store)(nil)

func New() *Store {
	return &Store{byID: make(map[int64]int)}
}

// ExportFiling stores the row of f and returns a synthetic row reference.
func (s *Store) ExportFiling(_ context.Context, f core.Filing) (string, error) {
	if f.ID == 0 {
		return "", fmt.Errorf("filing has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := sheets.Row(f)
	if i, ok := s.byID[f.ID]; ok {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	s.byID[f.ID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the exported rows in first-export order.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
