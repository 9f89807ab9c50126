package core

import (
	"strings"
	"time"
)

// ContributionAmountCents is the fixed value of one monthly contribution
// (4000.00). Every ledger entry is recorded at this amount; it is never
// accepted from input and never changed by an update.
const ContributionAmountCents int64 = 400000

// MaxNotesLength bounds the optional free-text annotation on a contribution.
const MaxNotesLength = 255

const (
	RoleMember    Role = "member"
	RoleTreasurer Role = "treasurer"
	RoleAdmin     Role = "admin"
)

type (
	Role string

	// Period identifies one calendar month.
	Period struct {
		Year  int
		Month int // 1-12
	}

	// Member is the identity collaborator's view of a group member.
	// The ledger references members but never mutates them.
	Member struct {
		ID    int64
		Name  string
		Email string
		Roles []Role
	}

	// Contribution is one ledger entry: a member's fixed-amount contribution
	// attributed to a calendar month.
	Contribution struct {
		ID                int64
		MemberID          int64
		AmountCents       int64
		ContributedAt     time.Time
		ContributionYear  int
		ContributionMonth int
		CreatedBy         int64
		Notes             string
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// ContributionInput is what callers supply when recording or editing an
	// entry. The amount is not part of the input by design.
	ContributionInput struct {
		MemberID      int64
		ContributedAt time.Time
		Notes         string
	}
)

// Valid reports whether the role is one of the known grants.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleTreasurer, RoleAdmin:
		return true
	}
	return false
}

// Elevated reports whether the role carries ledger-wide privileges.
func (r Role) Elevated() bool {
	return r == RoleTreasurer || r == RoleAdmin
}

// HasRole reports whether the member holds the given role grant.
func (m Member) HasRole(role Role) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Elevated reports whether any of the member's roles is elevated.
func (m Member) Elevated() bool {
	for _, r := range m.Roles {
		if r.Elevated() {
			return true
		}
	}
	return false
}

// PeriodOf derives the calendar period a date belongs to.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Period returns the calendar month the contribution is attributed to,
// from the stored derived fields.
func (c Contribution) Period() Period {
	return Period{Year: c.ContributionYear, Month: c.ContributionMonth}
}

// Validate checks the caller-supplied fields. Field names match the wire
// format so failures can be reported field by field.
func (in ContributionInput) Validate() error {
	ve := NewValidationError()
	if in.MemberID <= 0 {
		ve.Add(FieldMemberID, "member is required")
	}
	if in.ContributedAt.IsZero() {
		ve.Add(FieldContributedAt, "contribution date is required")
	}
	if len(in.Notes) > MaxNotesLength {
		ve.Add(FieldNotes, "notes too long (max 255 characters)")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// NormalizedNotes trims whitespace and strips control characters from the
// notes annotation before it is stored.
func (in ContributionInput) NormalizedNotes() string {
	s := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, in.Notes)
	return strings.TrimSpace(s)
}
