package sheets

import (
	"context"
	"time"
)

// Row is one contribution as it appears in the exported sheet.
type Row struct {
	ID            int64
	ContributedAt time.Time
	MemberName    string
	AmountCents   int64
	Notes         string
}

// Ports for outbound adapters.
type (
	ContributionWriter interface {
		Append(ctx context.Context, row Row) (rowRef string, err error)
	}

	// ContributionDeleter removes an exported row by ledger ID.
	ContributionDeleter interface {
		Delete(ctx context.Context, id int64) error
	}
)
