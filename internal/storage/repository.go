package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contributi/internal/core"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
)

// Sync states for the sheet export pipeline.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// ContributionRecord is a ledger row joined with the display names of its
// owning member and its creator.
type ContributionRecord struct {
	core.Contribution
	MemberName  string
	CreatorName string
	SyncStatus  string
}

// MemberTotal is one member's aggregated amount for a period.
type MemberTotal struct {
	MemberID   int64
	Name       string
	TotalCents int64
}

// PendingSyncContribution is the minimal data the worker needs to pick up
// rows that still have to be exported.
type PendingSyncContribution struct {
	ID        int64
	UpdatedAt time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is the contributions period
// constraint firing. The constraint is the atomic guarantee behind the
// one-per-member-per-month invariant; the application-level pre-check only
// exists for the friendlier field-level message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: contributions.member_id")
}

// CreateContribution inserts a ledger row at the fixed amount. The period
// fields are derived from the contribution date here, at write time.
func (r *SQLiteRepository) CreateContribution(ctx context.Context, in core.ContributionInput, createdBy int64) (*ContributionRecord, error) {
	period := core.PeriodOf(in.ContributedAt)
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO contributions
			(member_id, amount_cents, contributed_at, created_by, notes,
			 contribution_year, contribution_month, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.MemberID, core.ContributionAmountCents, in.ContributedAt.Format(dateLayout),
		createdBy, in.NormalizedNotes(), period.Year, period.Month,
		SyncPending, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &core.DuplicatePeriodError{MemberID: in.MemberID, Period: period}
		}
		return nil, fmt.Errorf("insert contribution: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("contribution insert id: %w", err)
	}

	slog.InfoContext(ctx, "Contribution saved",
		"id", id,
		"member_id", in.MemberID,
		"year", period.Year,
		"month", period.Month,
		"amount_cents", core.ContributionAmountCents)

	return r.GetContribution(ctx, id)
}

// UpdateContribution rewrites the caller-editable fields and re-derives the
// period from the new date. The amount is never touched. The row goes back
// to pending so the worker re-exports it.
func (r *SQLiteRepository) UpdateContribution(ctx context.Context, id int64, in core.ContributionInput) (*ContributionRecord, error) {
	period := core.PeriodOf(in.ContributedAt)
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE contributions
		SET member_id = ?, contributed_at = ?, notes = ?,
		    contribution_year = ?, contribution_month = ?,
		    sync_status = ?, updated_at = ?
		WHERE id = ?`,
		in.MemberID, in.ContributedAt.Format(dateLayout), in.NormalizedNotes(),
		period.Year, period.Month, SyncPending, now.Format(timeLayout), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &core.DuplicatePeriodError{MemberID: in.MemberID, Period: period}
		}
		return nil, fmt.Errorf("update contribution: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update contribution rows affected: %w", err)
	}
	if affected == 0 {
		return nil, core.ErrNotFound
	}

	return r.GetContribution(ctx, id)
}

// DeleteContribution hard-deletes a ledger row. There is no tombstone.
func (r *SQLiteRepository) DeleteContribution(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contributions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contribution rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Contribution deleted", "id", id)
	return nil
}

const contributionColumns = `
	c.id, c.member_id, c.amount_cents, c.contributed_at, c.created_by, c.notes,
	c.contribution_year, c.contribution_month, c.sync_status, c.created_at, c.updated_at,
	m.name, creator.name`

const contributionJoins = `
	FROM contributions c
	JOIN members m ON m.id = c.member_id
	JOIN members creator ON creator.id = c.created_by`

func scanContribution(row interface{ Scan(...any) error }) (*ContributionRecord, error) {
	var (
		rec                            ContributionRecord
		contributedAt, createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.ID, &rec.MemberID, &rec.AmountCents, &contributedAt, &rec.CreatedBy, &rec.Notes,
		&rec.ContributionYear, &rec.ContributionMonth, &rec.SyncStatus, &createdAt, &updatedAt,
		&rec.MemberName, &rec.CreatorName,
	)
	if err != nil {
		return nil, err
	}

	if rec.ContributedAt, err = time.ParseInLocation(dateLayout, contributedAt, time.UTC); err != nil {
		return nil, fmt.Errorf("parse contributed_at %q: %w", contributedAt, err)
	}
	if rec.CreatedAt, err = time.ParseInLocation(timeLayout, createdAt, time.UTC); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if rec.UpdatedAt, err = time.ParseInLocation(timeLayout, updatedAt, time.UTC); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return &rec, nil
}

// GetContribution returns a single ledger row joined with member and creator names.
func (r *SQLiteRepository) GetContribution(ctx context.Context, id int64) (*ContributionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+contributionColumns+contributionJoins+` WHERE c.id = ?`, id)
	rec, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contribution %d: %w", id, err)
	}
	return rec, nil
}

// HasContributionForPeriod reports whether a member already has an entry for
// the period, optionally excluding one row (pass excludeID = 0 for none).
// This backs the field-level duplicate message; the unique index is what
// actually enforces the invariant under concurrency.
func (r *SQLiteRepository) HasContributionForPeriod(ctx context.Context, memberID int64, period core.Period, excludeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM contributions
		WHERE member_id = ? AND contribution_year = ? AND contribution_month = ? AND id != ?`,
		memberID, period.Year, period.Month, excludeID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check contribution period: %w", err)
	}
	return n > 0, nil
}

// ListContributions returns ledger rows ordered by contribution date
// descending. Pass memberID = 0 to list all members' rows.
func (r *SQLiteRepository) ListContributions(ctx context.Context, memberID int64, limit, offset int) ([]ContributionRecord, error) {
	query := `SELECT` + contributionColumns + contributionJoins
	args := []any{}
	if memberID > 0 {
		query += ` WHERE c.member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY c.contributed_at DESC, c.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []ContributionRecord
	for rows.Next() {
		rec, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contributions rows: %w", err)
	}
	return out, nil
}

// CountContributions counts ledger rows, scoped to one member when memberID > 0.
func (r *SQLiteRepository) CountContributions(ctx context.Context, memberID int64) (int64, error) {
	query := `SELECT COUNT(1) FROM contributions`
	args := []any{}
	if memberID > 0 {
		query += ` WHERE member_id = ?`
		args = append(args, memberID)
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contributions: %w", err)
	}
	return n, nil
}

// Aggregation queries. These sum by the record-creation timestamp, not by the
// contribution date, matching the dashboard's historical behavior (a
// backdated entry recorded today counts toward today's period).

// SumMemberYearCents totals one member's contributions created in the year.
func (r *SQLiteRepository) SumMemberYearCents(ctx context.Context, memberID int64, year int) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM contributions
		WHERE member_id = ? AND CAST(strftime('%Y', created_at) AS INTEGER) = ?`,
		memberID, year,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum member year: %w", err)
	}
	return total, nil
}

// SumMemberAllTimeCents totals every contribution a member has ever made.
func (r *SQLiteRepository) SumMemberAllTimeCents(ctx context.Context, memberID int64) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM contributions WHERE member_id = ?`,
		memberID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum member all time: %w", err)
	}
	return total, nil
}

// SumGroupYearCents totals the whole group's contributions created in the year.
func (r *SQLiteRepository) SumGroupYearCents(ctx context.Context, year int) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM contributions
		WHERE CAST(strftime('%Y', created_at) AS INTEGER) = ?`,
		year,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum group year: %w", err)
	}
	return total, nil
}

// MemberTotalsForMonth returns every member with their total for the month;
// members without contributions that month report zero.
func (r *SQLiteRepository) MemberTotalsForMonth(ctx context.Context, period core.Period) ([]MemberTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.name, COALESCE(SUM(c.amount_cents), 0)
		FROM members m
		LEFT JOIN contributions c ON c.member_id = m.id
			AND CAST(strftime('%Y', c.created_at) AS INTEGER) = ?
			AND CAST(strftime('%m', c.created_at) AS INTEGER) = ?
		GROUP BY m.id, m.name
		ORDER BY m.name`,
		period.Year, period.Month,
	)
	if err != nil {
		return nil, fmt.Errorf("member totals for month: %w", err)
	}
	defer rows.Close()

	var out []MemberTotal
	for rows.Next() {
		var mt MemberTotal
		if err := rows.Scan(&mt.MemberID, &mt.Name, &mt.TotalCents); err != nil {
			return nil, fmt.Errorf("scan member total: %w", err)
		}
		out = append(out, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("member totals rows: %w", err)
	}
	return out, nil
}

// MonthlyTotalsForYear returns a fixed 12-element series of group totals
// indexed by creation month; months with no activity report zero.
func (r *SQLiteRepository) MonthlyTotalsForYear(ctx context.Context, year int) ([12]int64, error) {
	var series [12]int64
	rows, err := r.db.QueryContext(ctx, `
		SELECT CAST(strftime('%m', created_at) AS INTEGER) AS month, SUM(amount_cents)
		FROM contributions
		WHERE CAST(strftime('%Y', created_at) AS INTEGER) = ?
		GROUP BY month
		ORDER BY month`,
		year,
	)
	if err != nil {
		return series, fmt.Errorf("monthly totals for year: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var month int
		var total int64
		if err := rows.Scan(&month, &total); err != nil {
			return series, fmt.Errorf("scan monthly total: %w", err)
		}
		if month >= 1 && month <= 12 {
			series[month-1] = total
		}
	}
	if err := rows.Err(); err != nil {
		return series, fmt.Errorf("monthly totals rows: %w", err)
	}
	return series, nil
}

// Member queries. The ledger reads membership and role data but never
// mutates it outside of seeding.

func (r *SQLiteRepository) getMember(ctx context.Context, query string, arg any) (*core.Member, error) {
	var m core.Member
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&m.ID, &m.Name, &m.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT role FROM member_roles WHERE member_id = ? ORDER BY role`, m.ID)
	if err != nil {
		return nil, fmt.Errorf("get member roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan member role: %w", err)
		}
		m.Roles = append(m.Roles, core.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("member roles rows: %w", err)
	}
	return &m, nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id int64) (*core.Member, error) {
	return r.getMember(ctx, `SELECT id, name, email FROM members WHERE id = ?`, id)
}

// GetMemberByToken resolves an API token to a member, for the identity middleware.
func (r *SQLiteRepository) GetMemberByToken(ctx context.Context, token string) (*core.Member, error) {
	return r.getMember(ctx, `SELECT id, name, email FROM members WHERE api_token = ?`, token)
}

// ListMembers returns the member directory (id and display name), name-ordered.
func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, email FROM members ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members rows: %w", err)
	}
	return out, nil
}

// CreateMember inserts a member with role grants. Used by seeding; the
// ledger itself never creates members.
func (r *SQLiteRepository) CreateMember(ctx context.Context, name, email, apiToken string, roles []core.Role) (*core.Member, error) {
	for _, role := range roles {
		if !role.Valid() {
			ve := core.NewValidationError()
			ve.Add("role", fmt.Sprintf("unknown role %q", role))
			return nil, ve
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create member: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO members (name, email, api_token, created_at) VALUES (?, ?, ?, ?)`,
		name, email, apiToken, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("member insert id: %w", err)
	}

	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO member_roles (member_id, role) VALUES (?, ?)`, id, string(role)); err != nil {
			return nil, fmt.Errorf("insert member role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create member: %w", err)
	}

	return &core.Member{ID: id, Name: name, Email: email, Roles: roles}, nil
}

// Sheet export support.

// GetPendingSyncContributions returns rows waiting for export, oldest first.
func (r *SQLiteRepository) GetPendingSyncContributions(ctx context.Context, limit int) ([]PendingSyncContribution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, updated_at FROM contributions
		WHERE sync_status = ? ORDER BY updated_at LIMIT ?`,
		SyncPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending sync contributions: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncContribution
	for rows.Next() {
		var p PendingSyncContribution
		var updatedAt string
		if err := rows.Scan(&p.ID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		if p.UpdatedAt, err = time.ParseInLocation(timeLayout, updatedAt, time.UTC); err != nil {
			return nil, fmt.Errorf("parse pending updated_at %q: %w", updatedAt, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending sync rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE contributions SET sync_status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	return nil
}

// MarkSynced marks a contribution as successfully exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncDone); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Contribution marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a contribution as having failed export.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Contribution marked with sync error", "id", id)
	return nil
}
