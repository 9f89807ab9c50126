package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"contributi/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedMember(t *testing.T, repo *SQLiteRepository, name string, roles ...core.Role) *core.Member {
	t.Helper()
	if len(roles) == 0 {
		roles = []core.Role{core.RoleMember}
	}
	m, err := repo.CreateMember(context.Background(), name,
		fmt.Sprintf("%s@example.com", name), "token-"+name, roles)
	if err != nil {
		t.Fatalf("CreateMember(%s): %v", name, err)
	}
	return m
}

func mustCreate(t *testing.T, repo *SQLiteRepository, memberID, createdBy int64, date time.Time) *ContributionRecord {
	t.Helper()
	rec, err := repo.CreateContribution(context.Background(),
		core.ContributionInput{MemberID: memberID, ContributedAt: date}, createdBy)
	if err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}
	return rec
}

// backdateCreatedAt rewrites a row's creation timestamp so aggregation
// queries can be exercised across months and years.
func backdateCreatedAt(t *testing.T, repo *SQLiteRepository, id int64, created time.Time) {
	t.Helper()
	if _, err := repo.db.Exec(`UPDATE contributions SET created_at = ? WHERE id = ?`,
		created.UTC().Format(timeLayout), id); err != nil {
		t.Fatalf("backdate created_at: %v", err)
	}
}

func TestCreateContribution(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")
	treasurer := seedMember(t, repo, "tessa", core.RoleTreasurer)

	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	rec, err := repo.CreateContribution(context.Background(), core.ContributionInput{
		MemberID:      member.ID,
		ContributedAt: date,
		Notes:         "March dues",
	}, treasurer.ID)
	if err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}

	if rec.AmountCents != core.ContributionAmountCents {
		t.Errorf("AmountCents = %d, want %d", rec.AmountCents, core.ContributionAmountCents)
	}
	if rec.ContributionYear != 2026 || rec.ContributionMonth != 3 {
		t.Errorf("period = %d-%d, want 2026-3", rec.ContributionYear, rec.ContributionMonth)
	}
	if !rec.ContributedAt.Equal(date) {
		t.Errorf("ContributedAt = %v, want %v", rec.ContributedAt, date)
	}
	if rec.CreatedBy != treasurer.ID {
		t.Errorf("CreatedBy = %d, want %d", rec.CreatedBy, treasurer.ID)
	}
	if rec.MemberName != "alice" || rec.CreatorName != "tessa" {
		t.Errorf("names = %q/%q, want alice/tessa", rec.MemberName, rec.CreatorName)
	}
	if rec.SyncStatus != SyncPending {
		t.Errorf("SyncStatus = %q, want %q", rec.SyncStatus, SyncPending)
	}
}

func TestCreateContribution_DuplicatePeriod(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")

	mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	// Same member, same month, different day: the unique index fires.
	_, err := repo.CreateContribution(context.Background(), core.ContributionInput{
		MemberID:      member.ID,
		ContributedAt: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}, member.ID)

	var dup *core.DuplicatePeriodError
	if !errors.As(err, &dup) {
		t.Fatalf("CreateContribution = %v, want *DuplicatePeriodError", err)
	}
	if dup.Period != (core.Period{Year: 2026, Month: 3}) {
		t.Errorf("conflict period = %+v, want {2026 3}", dup.Period)
	}

	// Ledger size unchanged.
	n, err := repo.CountContributions(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("CountContributions: %v", err)
	}
	if n != 1 {
		t.Errorf("ledger size = %d, want 1", n)
	}
}

func TestCreateContribution_CrossMonthAllowed(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")

	mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	n, err := repo.CountContributions(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("CountContributions: %v", err)
	}
	if n != 2 {
		t.Errorf("ledger size = %d, want 2", n)
	}
}

func TestCreateContribution_SamePeriodDifferentMembers(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedMember(t, repo, "alice")
	bob := seedMember(t, repo, "bob")

	mustCreate(t, repo, alice.ID, alice.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	mustCreate(t, repo, bob.ID, bob.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	n, err := repo.CountContributions(context.Background(), 0)
	if err != nil {
		t.Fatalf("CountContributions: %v", err)
	}
	if n != 2 {
		t.Errorf("ledger size = %d, want 2", n)
	}
}

func TestUpdateContribution(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")

	rec := mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	t.Run("notes only edit keeps period", func(t *testing.T) {
		updated, err := repo.UpdateContribution(context.Background(), rec.ID, core.ContributionInput{
			MemberID:      member.ID,
			ContributedAt: rec.ContributedAt,
			Notes:         "paid in cash",
		})
		if err != nil {
			t.Fatalf("UpdateContribution: %v", err)
		}
		if updated.Notes != "paid in cash" {
			t.Errorf("Notes = %q, want %q", updated.Notes, "paid in cash")
		}
		if updated.AmountCents != core.ContributionAmountCents {
			t.Errorf("AmountCents = %d, update must not change the amount", updated.AmountCents)
		}
	})

	t.Run("date change re-derives period", func(t *testing.T) {
		updated, err := repo.UpdateContribution(context.Background(), rec.ID, core.ContributionInput{
			MemberID:      member.ID,
			ContributedAt: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("UpdateContribution: %v", err)
		}
		if updated.ContributionYear != 2026 || updated.ContributionMonth != 5 {
			t.Errorf("period = %d-%d, want 2026-5", updated.ContributionYear, updated.ContributionMonth)
		}
	})

	t.Run("collision with another row", func(t *testing.T) {
		other := mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

		_, err := repo.UpdateContribution(context.Background(), other.ID, core.ContributionInput{
			MemberID:      member.ID,
			ContributedAt: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), // rec now lives in May
		})
		var dup *core.DuplicatePeriodError
		if !errors.As(err, &dup) {
			t.Fatalf("UpdateContribution = %v, want *DuplicatePeriodError", err)
		}

		// The losing row is left unmodified.
		after, err := repo.GetContribution(context.Background(), other.ID)
		if err != nil {
			t.Fatalf("GetContribution: %v", err)
		}
		if after.ContributionMonth != 7 {
			t.Errorf("month after failed update = %d, want 7", after.ContributionMonth)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		_, err := repo.UpdateContribution(context.Background(), 99999, core.ContributionInput{
			MemberID:      member.ID,
			ContributedAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("UpdateContribution = %v, want ErrNotFound", err)
		}
	})
}

func TestHasContributionForPeriod_SelfExclusion(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")
	rec := mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	period := core.Period{Year: 2026, Month: 3}

	found, err := repo.HasContributionForPeriod(context.Background(), member.ID, period, 0)
	if err != nil {
		t.Fatalf("HasContributionForPeriod: %v", err)
	}
	if !found {
		t.Error("period should be reported occupied without exclusion")
	}

	found, err = repo.HasContributionForPeriod(context.Background(), member.ID, period, rec.ID)
	if err != nil {
		t.Fatalf("HasContributionForPeriod: %v", err)
	}
	if found {
		t.Error("row must not conflict with itself")
	}
}

func TestDeleteContribution(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")
	rec := mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	if err := repo.DeleteContribution(context.Background(), rec.ID); err != nil {
		t.Fatalf("DeleteContribution: %v", err)
	}
	if _, err := repo.GetContribution(context.Background(), rec.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetContribution after delete = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteContribution(context.Background(), rec.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestListContributions_OrderAndScope(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedMember(t, repo, "alice")
	bob := seedMember(t, repo, "bob")

	mustCreate(t, repo, alice.ID, alice.ID, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	mustCreate(t, repo, alice.ID, alice.ID, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	mustCreate(t, repo, bob.ID, bob.ID, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))

	all, err := repo.ListContributions(context.Background(), 0, 10, 0)
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ContributedAt.After(all[i-1].ContributedAt) {
			t.Errorf("list not ordered by contributed_at descending at index %d", i)
		}
	}

	own, err := repo.ListContributions(context.Background(), alice.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListContributions(alice): %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("len(own) = %d, want 2", len(own))
	}
	for _, rec := range own {
		if rec.MemberID != alice.ID {
			t.Errorf("scoped list leaked member %d", rec.MemberID)
		}
	}
}

func TestMonthlyTotalsForYear(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedMember(t, repo, "alice")
	bob := seedMember(t, repo, "bob")

	jan := mustCreate(t, repo, alice.ID, alice.ID, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	mar := mustCreate(t, repo, bob.ID, bob.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	backdateCreatedAt(t, repo, jan.ID, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	backdateCreatedAt(t, repo, mar.ID, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC))

	series, err := repo.MonthlyTotalsForYear(context.Background(), 2026)
	if err != nil {
		t.Fatalf("MonthlyTotalsForYear: %v", err)
	}

	want := [12]int64{core.ContributionAmountCents, 0, core.ContributionAmountCents}
	if series != want {
		t.Errorf("series = %v, want %v", series, want)
	}
}

func TestAggregationByCreationYear(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedMember(t, repo, "alice")
	bob := seedMember(t, repo, "bob")

	// Three rows created in 2026, one of them attributed to December 2025:
	// aggregation follows the creation year, not the contribution date.
	a1 := mustCreate(t, repo, alice.ID, alice.ID, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	a2 := mustCreate(t, repo, alice.ID, alice.ID, time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC))
	b1 := mustCreate(t, repo, bob.ID, bob.ID, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC))
	backdateCreatedAt(t, repo, a1.ID, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	backdateCreatedAt(t, repo, a2.ID, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	backdateCreatedAt(t, repo, b1.ID, time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC))

	memberYear, err := repo.SumMemberYearCents(context.Background(), alice.ID, 2026)
	if err != nil {
		t.Fatalf("SumMemberYearCents: %v", err)
	}
	if want := 2 * core.ContributionAmountCents; memberYear != want {
		t.Errorf("member 2026 total = %d, want %d", memberYear, want)
	}

	groupYear, err := repo.SumGroupYearCents(context.Background(), 2026)
	if err != nil {
		t.Fatalf("SumGroupYearCents: %v", err)
	}
	if want := 3 * core.ContributionAmountCents; groupYear != want {
		t.Errorf("group 2026 total = %d, want %d", groupYear, want)
	}

	allTime, err := repo.SumMemberAllTimeCents(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("SumMemberAllTimeCents: %v", err)
	}
	if want := 2 * core.ContributionAmountCents; allTime != want {
		t.Errorf("member all-time total = %d, want %d", allTime, want)
	}
}

func TestMemberTotalsForMonth_ZeroesIncluded(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedMember(t, repo, "alice")
	seedMember(t, repo, "bob") // never contributes

	rec := mustCreate(t, repo, alice.ID, alice.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	backdateCreatedAt(t, repo, rec.ID, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC))

	totals, err := repo.MemberTotalsForMonth(context.Background(), core.Period{Year: 2026, Month: 3})
	if err != nil {
		t.Fatalf("MemberTotalsForMonth: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("len(totals) = %d, want 2 (every member reported)", len(totals))
	}

	byName := map[string]int64{}
	for _, mt := range totals {
		byName[mt.Name] = mt.TotalCents
	}
	if byName["alice"] != core.ContributionAmountCents {
		t.Errorf("alice total = %d, want %d", byName["alice"], core.ContributionAmountCents)
	}
	if byName["bob"] != 0 {
		t.Errorf("bob total = %d, want 0", byName["bob"])
	}
}

func TestMemberLookup(t *testing.T) {
	repo := newTestRepo(t)
	seedMember(t, repo, "alice", core.RoleMember, core.RoleTreasurer)

	m, err := repo.GetMemberByToken(context.Background(), "token-alice")
	if err != nil {
		t.Fatalf("GetMemberByToken: %v", err)
	}
	if !m.HasRole(core.RoleTreasurer) {
		t.Errorf("roles = %v, want treasurer grant", m.Roles)
	}

	if _, err := repo.GetMemberByToken(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown token = %v, want ErrNotFound", err)
	}
}

func TestSyncStatusLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	member := seedMember(t, repo, "alice")
	rec := mustCreate(t, repo, member.ID, member.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	pending, err := repo.GetPendingSyncContributions(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPendingSyncContributions: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != rec.ID {
		t.Fatalf("pending = %+v, want the new row", pending)
	}

	if err := repo.MarkSynced(context.Background(), rec.ID); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	pending, err = repo.GetPendingSyncContributions(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPendingSyncContributions: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after sync = %d rows, want 0", len(pending))
	}

	// An edit re-queues the row for export.
	if _, err := repo.UpdateContribution(context.Background(), rec.ID, core.ContributionInput{
		MemberID:      member.ID,
		ContributedAt: rec.ContributedAt,
		Notes:         "edited",
	}); err != nil {
		t.Fatalf("UpdateContribution: %v", err)
	}
	pending, err = repo.GetPendingSyncContributions(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPendingSyncContributions: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending after edit = %d rows, want 1", len(pending))
	}
}
