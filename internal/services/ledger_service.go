package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"contributi/internal/amqp"
	"contributi/internal/authz"
	"contributi/internal/core"
	"contributi/internal/storage"
)

// PageSize is the fixed page length for contribution listings.
const PageSize = 10

// LedgerService orchestrates contribution operations across SQLite and AMQP
type LedgerService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewLedgerService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// ContributionPage is one page of a contribution listing.
type ContributionPage struct {
	Items    []storage.ContributionRecord
	Page     int
	PageSize int
	Total    int64
}

// List returns one page of contributions visible to the actor, newest
// contribution date first. Members without an elevated role only see their
// own entries.
func (s *LedgerService) List(ctx context.Context, actor *core.Member, page int) (*ContributionPage, error) {
	if !authz.CanViewAny(actor) {
		return nil, core.ErrForbidden
	}
	if page < 1 {
		page = 1
	}

	memberID := actor.ID
	if authz.SeesAllContributions(actor) {
		memberID = 0 // no scoping
	}

	total, err := s.storage.CountContributions(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("count contributions: %w", err)
	}

	items, err := s.storage.ListContributions(ctx, memberID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}

	return &ContributionPage{
		Items:    items,
		Page:     page,
		PageSize: PageSize,
		Total:    total,
	}, nil
}

// Get returns a single contribution if the actor may see it.
func (s *LedgerService) Get(ctx context.Context, actor *core.Member, id int64) (*storage.ContributionRecord, error) {
	if !authz.CanViewAny(actor) {
		return nil, core.ErrForbidden
	}

	rec, err := s.storage.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.SeesAllContributions(actor) && rec.MemberID != actor.ID {
		// Hide other members' entries from base-role callers.
		return nil, core.ErrNotFound
	}
	return rec, nil
}

// Create records a contribution for a member and publishes a sync message.
// Only elevated actors may create entries.
func (s *LedgerService) Create(ctx context.Context, actor *core.Member, in core.ContributionInput) (*storage.ContributionRecord, error) {
	if !authz.CanCreate(actor) {
		return nil, core.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.checkMemberExists(ctx, in.MemberID); err != nil {
		return nil, err
	}
	if err := s.checkPeriodFree(ctx, in, 0); err != nil {
		return nil, err
	}

	rec, err := s.storage.CreateContribution(ctx, in, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("create contribution: %w", err)
	}

	// Publish async sync message (non-blocking)
	if err := s.publishSyncMessage(ctx, rec.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", rec.ID, "error", err)
		// Don't fail the request - contribution is saved locally
	}

	return rec, nil
}

// Update edits a contribution's member, date or notes. The owner may edit
// their own entry; elevated actors may edit any and may reassign the row to
// a different member. The amount never changes.
func (s *LedgerService) Update(ctx context.Context, actor *core.Member, id int64, in core.ContributionInput) (*storage.ContributionRecord, error) {
	existing, err := s.storage.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanUpdate(actor, &existing.Contribution) {
		return nil, core.ErrForbidden
	}

	// An absent member field keeps the current owner.
	if in.MemberID == 0 {
		in.MemberID = existing.MemberID
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.MemberID != existing.MemberID {
		// Reassigning a contribution to another member is an elevated action.
		if !actor.Elevated() {
			return nil, core.ErrForbidden
		}
		if err := s.checkMemberExists(ctx, in.MemberID); err != nil {
			return nil, err
		}
	}
	if err := s.checkPeriodFree(ctx, in, id); err != nil {
		return nil, err
	}

	rec, err := s.storage.UpdateContribution(ctx, id, in)
	if err != nil {
		return nil, err
	}

	if err := s.publishSyncMessage(ctx, rec.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", rec.ID, "error", err)
	}

	return rec, nil
}

// Delete removes a contribution. Only elevated actors may delete.
func (s *LedgerService) Delete(ctx context.Context, actor *core.Member, id int64) error {
	if !authz.CanDelete(actor) {
		return core.ErrForbidden
	}

	// Load before deleting; the delete message needs the row's locator data.
	existing, err := s.storage.GetContribution(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteContribution(ctx, id); err != nil {
		return err
	}

	if err := s.publishDeleteMessage(ctx, existing); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message",
			"id", id, "error", err)
		// Don't fail the request - contribution is deleted locally
	}

	return nil
}

// checkMemberExists reports an unknown member as a field-level error so the
// caller sees it next to the member input, not as a 404.
func (s *LedgerService) checkMemberExists(ctx context.Context, memberID int64) error {
	_, err := s.storage.GetMember(ctx, memberID)
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) {
		ve := core.NewValidationError()
		ve.Add(core.FieldMemberID, "selected member does not exist")
		return ve
	}
	return fmt.Errorf("look up member: %w", err)
}

// checkPeriodFree enforces one contribution per member per month before
// hitting the database constraint, so conflicts surface as a field-level
// message. The unique index remains the atomic guarantee under races.
func (s *LedgerService) checkPeriodFree(ctx context.Context, in core.ContributionInput, excludeID int64) error {
	period := core.PeriodOf(in.ContributedAt)
	taken, err := s.storage.HasContributionForPeriod(ctx, in.MemberID, period, excludeID)
	if err != nil {
		return fmt.Errorf("check period: %w", err)
	}
	if taken {
		return &core.DuplicatePeriodError{MemberID: in.MemberID, Period: period}
	}
	return nil
}

func (s *LedgerService) publishSyncMessage(ctx context.Context, id int64) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}

	return s.amqpClient.PublishContributionSync(ctx, id)
}

func (s *LedgerService) publishDeleteMessage(ctx context.Context, rec *storage.ContributionRecord) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping delete message")
		return nil
	}

	return s.amqpClient.PublishContributionDelete(ctx, rec.ID, rec.MemberName,
		rec.ContributionYear, rec.ContributionMonth)
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
