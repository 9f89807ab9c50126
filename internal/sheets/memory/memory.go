package memory

import (
	"context"
	"fmt"
	"sync"

	"contributi/internal/sheets"
)

// Store is an in-memory stand-in for the Google Sheets adapter, used in
// tests and local development without credentials.
type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var (
	_ sheets.ContributionWriter  = (*Store)(nil)
	_ sheets.ContributionDeleter = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, row sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Delete removes the row with the given ledger ID. Deleting an absent row
// is a no-op, matching the sheet adapter.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Rows returns a copy of the stored rows.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
