package stockledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort abstracts approval history recording.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// IdempotencyPort guards against double-processing of approval requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort abstracts the decision counters.
type MetricsPort interface {
	EntryDecided(entryType, outcome string)
	StockRejection()
}

// SummaryInvalidator drops cached stock summaries after an approval changes
// product quantities.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context, companyID uuid.UUID) error
}

const approvalModule = "stockledger"

// Service coordinates ledger operations. Approve and Reject are the only
// paths that change product stock; everything else edits draft documents.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	approvals   ApprovalPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	invalidator SummaryInvalidator
	logger      *slog.Logger
}

// NewService builds Service. Collaborators other than repo may be nil.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort, idem IdempotencyPort, metrics MetricsPort, invalidator SummaryInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, approvals: approvals, idempotency: idem, metrics: metrics, invalidator: invalidator, logger: logger}
}

// CreateEntryInput describes a new entry with optional initial lines.
type CreateEntryInput struct {
	EntryType         EntryType
	EntryDate         time.Time
	ReferenceType     string
	ReferenceNumber   string
	PartyType         string
	PartyName         string
	WarehouseLocation string
	Remarks           string
	Items             []ItemInput
}

// ItemInput describes one line. UnitPrice zero means use the catalog price.
type ItemInput struct {
	ProductID    uuid.UUID
	Quantity     int64
	UnitPrice    float64
	BatchNumber  string
	SerialNumber string
	ExpiryDate   *time.Time
	BinLocation  string
}

// CreateEntry creates a draft entry, allocating the tenant's next entry
// number and attaching any initial lines in the same transaction.
func (s *Service) CreateEntry(ctx context.Context, identity shared.Identity, input CreateEntryInput) (StockEntry, error) {
	if !input.EntryType.Valid() {
		return StockEntry{}, fmt.Errorf("stockledger: unknown entry type %q", input.EntryType)
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return StockEntry{}, errors.New("stockledger: item product required")
		}
		if item.Quantity <= 0 {
			return StockEntry{}, ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return StockEntry{}, errors.New("stockledger: unit price must be >= 0")
		}
	}

	now := time.Now().UTC()
	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = now
	}

	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextEntryNumber(ctx, identity.CompanyID, input.EntryType)
		if err != nil {
			return err
		}
		entry = StockEntry{
			ID:                uuid.New(),
			CompanyID:         identity.CompanyID,
			EntryNumber:       number,
			EntryType:         input.EntryType,
			EntryDate:         entryDate,
			ReferenceType:     input.ReferenceType,
			ReferenceNumber:   input.ReferenceNumber,
			PartyType:         input.PartyType,
			PartyName:         input.PartyName,
			WarehouseLocation: input.WarehouseLocation,
			Remarks:           input.Remarks,
			Status:            StatusDraft,
			CreatedBy:         identity.UserID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		if len(input.Items) > 0 {
			productIDs := make([]uuid.UUID, 0, len(input.Items))
			for _, item := range input.Items {
				productIDs = append(productIDs, item.ProductID)
			}
			info, err := tx.GetProductInfo(ctx, identity.CompanyID, productIDs)
			if err != nil {
				return err
			}
			for _, in := range input.Items {
				item := StockEntryItem{
					ID:           uuid.New(),
					EntryID:      entry.ID,
					ProductID:    in.ProductID,
					ProductName:  info[in.ProductID].Name,
					Quantity:     in.Quantity,
					UnitPrice:    in.UnitPrice,
					BatchNumber:  in.BatchNumber,
					SerialNumber: in.SerialNumber,
					ExpiryDate:   in.ExpiryDate,
					BinLocation:  in.BinLocation,
				}
				if item.UnitPrice == 0 {
					item.UnitPrice = info[in.ProductID].Price
				}
				if err := tx.InsertItem(ctx, item); err != nil {
					return err
				}
				entry.Items = append(entry.Items, item)
			}
			entry.TotalQuantity, entry.TotalValue = totals(entry.Items)
			if err := tx.UpdateEntryTotals(ctx, identity.CompanyID, entry.ID, entry.TotalQuantity, entry.TotalValue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StockEntry{}, err
	}

	s.recordAudit(ctx, identity, "stockledger:create", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"entry_type":   string(entry.EntryType),
		"items":        len(entry.Items),
	})
	return entry, nil
}

// AddItem attaches a line to a draft entry and recomputes its totals.
func (s *Service) AddItem(ctx context.Context, identity shared.Identity, entryID uuid.UUID, input ItemInput) (StockEntry, error) {
	if input.ProductID == uuid.Nil {
		return StockEntry{}, errors.New("stockledger: item product required")
	}
	if input.Quantity <= 0 {
		return StockEntry{}, ErrInvalidQuantity
	}
	if input.UnitPrice < 0 {
		return StockEntry{}, errors.New("stockledger: unit price must be >= 0")
	}

	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return ErrInvalidState
		}
		info, err := tx.GetProductInfo(ctx, identity.CompanyID, []uuid.UUID{input.ProductID})
		if err != nil {
			return err
		}
		item := StockEntryItem{
			ID:           uuid.New(),
			EntryID:      entry.ID,
			ProductID:    input.ProductID,
			ProductName:  info[input.ProductID].Name,
			Quantity:     input.Quantity,
			UnitPrice:    input.UnitPrice,
			BatchNumber:  input.BatchNumber,
			SerialNumber: input.SerialNumber,
			ExpiryDate:   input.ExpiryDate,
			BinLocation:  input.BinLocation,
		}
		if item.UnitPrice == 0 {
			item.UnitPrice = info[input.ProductID].Price
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		entry.Items = append(entry.Items, item)
		entry.TotalQuantity, entry.TotalValue = totals(entry.Items)
		return tx.UpdateEntryTotals(ctx, identity.CompanyID, entry.ID, entry.TotalQuantity, entry.TotalValue)
	})
	if err != nil {
		return StockEntry{}, err
	}
	return entry, nil
}

// RemoveItem detaches a line from a draft entry and recomputes its totals.
func (s *Service) RemoveItem(ctx context.Context, identity shared.Identity, entryID, itemID uuid.UUID) (StockEntry, error) {
	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return ErrInvalidState
		}
		if err := tx.DeleteItem(ctx, entry.ID, itemID); err != nil {
			return err
		}
		kept := entry.Items[:0]
		for _, item := range entry.Items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		entry.Items = kept
		entry.TotalQuantity, entry.TotalValue = totals(entry.Items)
		return tx.UpdateEntryTotals(ctx, identity.CompanyID, entry.ID, entry.TotalQuantity, entry.TotalValue)
	})
	if err != nil {
		return StockEntry{}, err
	}
	return entry, nil
}

// UpdateEntryInput carries the editable header fields.
type UpdateEntryInput struct {
	EntryDate         time.Time
	ReferenceType     string
	ReferenceNumber   string
	PartyType         string
	PartyName         string
	WarehouseLocation string
	Remarks           string
}

// UpdateEntry rewrites the header fields of a draft entry. Entry number,
// type, and totals never change this way.
func (s *Service) UpdateEntry(ctx context.Context, identity shared.Identity, entryID uuid.UUID, input UpdateEntryInput) (StockEntry, error) {
	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return ErrInvalidState
		}
		if !input.EntryDate.IsZero() {
			entry.EntryDate = input.EntryDate
		}
		entry.ReferenceType = input.ReferenceType
		entry.ReferenceNumber = input.ReferenceNumber
		entry.PartyType = input.PartyType
		entry.PartyName = input.PartyName
		entry.WarehouseLocation = input.WarehouseLocation
		entry.Remarks = input.Remarks
		return tx.UpdateEntryHeader(ctx, entry)
	})
	if err != nil {
		return StockEntry{}, err
	}
	return entry, nil
}

// DeleteEntry removes a draft entry and its lines. Submitted and decided
// entries are part of the record and cannot be deleted.
func (s *Service) DeleteEntry(ctx context.Context, identity shared.Identity, entryID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return ErrInvalidState
		}
		return tx.DeleteEntry(ctx, identity.CompanyID, entryID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, identity, "stockledger:delete", entryID, nil)
	return nil
}

// Submit moves a draft entry to submitted, freezing it for review.
func (s *Service) Submit(ctx context.Context, identity shared.Identity, entryID uuid.UUID) (StockEntry, error) {
	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return ErrInvalidState
		}
		if len(entry.Items) == 0 {
			return ErrNoItems
		}
		entry.Status = StatusSubmitted
		return tx.SetEntryStatus(ctx, identity.CompanyID, entryID, StatusSubmitted, nil, nil)
	})
	if err != nil {
		return StockEntry{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   entryID,
			ActorID: identity.UserID,
			Action:  shared.ApprovalSubmit,
		})
	}
	s.recordAudit(ctx, identity, "stockledger:submit", entryID, map[string]any{"entry_number": entry.EntryNumber})
	return entry, nil
}

// GetEntry loads one entry with its lines.
func (s *Service) GetEntry(ctx context.Context, identity shared.Identity, entryID uuid.UUID) (StockEntry, error) {
	return s.repo.GetEntry(ctx, identity.CompanyID, entryID)
}

// ListEntries returns entries matching the filters plus a total count.
func (s *Service) ListEntries(ctx context.Context, identity shared.Identity, filters ListFilters) ([]StockEntry, int, error) {
	return s.repo.ListEntries(ctx, identity.CompanyID, filters)
}

// ListMovements returns the applied movement trail.
func (s *Service) ListMovements(ctx context.Context, identity shared.Identity, filters MovementFilters) ([]StockMovement, int, error) {
	return s.repo.ListMovements(ctx, identity.CompanyID, filters)
}

// CheckEntry runs the guard over an unlocked stock read. Advisory only: the
// answer can be stale by the time Approve runs, which re-checks under locks.
func (s *Service) CheckEntry(ctx context.Context, identity shared.Identity, entryID uuid.UUID) (GuardResult, error) {
	entry, err := s.repo.GetEntry(ctx, identity.CompanyID, entryID)
	if err != nil {
		return GuardResult{}, err
	}
	if !entry.Status.Decidable() {
		return GuardResult{}, ErrInvalidState
	}
	if entry.EntryType == EntryTypeInward {
		return GuardResult{OK: true}, nil
	}
	productIDs := make([]uuid.UUID, 0, len(entry.Items))
	for _, item := range entry.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	stock, err := s.repo.GetStock(ctx, identity.CompanyID, productIDs)
	if err != nil {
		return GuardResult{}, err
	}
	return CanApply(entry, stock), nil
}

// Approve applies a draft or submitted entry to product stock. Validation
// and application happen in one transaction over locked product rows, so a
// concurrent approval of overlapping products either sees this entry's
// effect or blocks until it commits. On insufficient stock nothing is
// written and the error lists every violating line.
func (s *Service) Approve(ctx context.Context, identity shared.Identity, entryID uuid.UUID) (StockEntry, error) {
	// Terminal status wins over the idempotency conflict: re-approving an
	// approved entry reports the state, not a duplicate request.
	current, err := s.repo.GetEntry(ctx, identity.CompanyID, entryID)
	if err != nil {
		return StockEntry{}, err
	}
	if !current.Status.Decidable() {
		return StockEntry{}, ErrInvalidState
	}

	key := fmt.Sprintf("approve:%s", entryID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, approvalModule); err != nil {
			return StockEntry{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	var entry StockEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if !entry.Status.Decidable() {
			return ErrInvalidState
		}
		if len(entry.Items) == 0 {
			return ErrNoItems
		}

		productIDs := make([]uuid.UUID, 0, len(entry.Items))
		for _, item := range entry.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		stock, err := tx.GetStockForUpdate(ctx, identity.CompanyID, productIDs)
		if err != nil {
			return err
		}
		if result := CanApply(entry, stock); !result.OK {
			return &InsufficientStockError{Violations: result.Violations}
		}

		deltas, order := aggregateDeltas(entry)
		balances := make(map[uuid.UUID]int64, len(order))
		for _, productID := range order {
			newQty, err := tx.AdjustStock(ctx, identity.CompanyID, productID, deltas[productID])
			if err != nil {
				return err
			}
			balances[productID] = newQty
		}

		// One movement per product delta, carrying the post-application
		// balance so the trail replays to the stored quantity.
		for _, productID := range order {
			qty := deltas[productID]
			if qty < 0 {
				qty = -qty
			}
			movement := StockMovement{
				ID:           uuid.New(),
				CompanyID:    identity.CompanyID,
				EntryID:      entry.ID,
				EntryNumber:  entry.EntryNumber,
				ProductID:    productID,
				MovementType: entry.EntryType,
				Quantity:     qty,
				BalanceAfter: balances[productID],
				CreatedAt:    now,
			}
			if err := tx.InsertMovement(ctx, movement); err != nil {
				return err
			}
		}

		entry.Status = StatusApproved
		entry.DecidedBy = &identity.UserID
		entry.DecidedAt = &now
		return tx.SetEntryStatus(ctx, identity.CompanyID, entryID, StatusApproved, entry.DecidedBy, entry.DecidedAt)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) && s.metrics != nil {
			s.metrics.StockRejection()
		}
		return StockEntry{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   entryID,
			ActorID: identity.UserID,
			Action:  shared.ApprovalApprove,
		})
	}
	s.recordAudit(ctx, identity, "stockledger:approve", entryID, map[string]any{
		"entry_number":   entry.EntryNumber,
		"entry_type":     string(entry.EntryType),
		"total_quantity": entry.TotalQuantity,
	})
	if s.metrics != nil {
		s.metrics.EntryDecided(string(entry.EntryType), "approved")
	}
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateSummary(ctx, identity.CompanyID); err != nil {
			s.logger.Warn("invalidate stock summary cache", slog.Any("error", err))
		}
	}
	return entry, nil
}

// Reject declines a draft or submitted entry without touching stock.
func (s *Service) Reject(ctx context.Context, identity shared.Identity, entryID uuid.UUID, reason string) (StockEntry, error) {
	now := time.Now().UTC()
	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, identity.CompanyID, entryID)
		if err != nil {
			return err
		}
		if !entry.Status.Decidable() {
			return ErrInvalidState
		}
		entry.Status = StatusRejected
		entry.DecidedBy = &identity.UserID
		entry.DecidedAt = &now
		return tx.SetEntryStatus(ctx, identity.CompanyID, entryID, StatusRejected, entry.DecidedBy, entry.DecidedAt)
	})
	if err != nil {
		return StockEntry{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   entryID,
			ActorID: identity.UserID,
			Action:  shared.ApprovalReject,
			Note:    reason,
		})
	}
	s.recordAudit(ctx, identity, "stockledger:reject", entryID, map[string]any{
		"entry_number": entry.EntryNumber,
		"reason":       reason,
	})
	if s.metrics != nil {
		s.metrics.EntryDecided(string(entry.EntryType), "rejected")
	}
	return entry, nil
}

func (s *Service) recordAudit(ctx context.Context, identity shared.Identity, action string, entryID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  identity.UserID,
		Action:   action,
		Entity:   "stock_entry",
		EntityID: entryID.String(),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func totals(items []StockEntryItem) (int64, float64) {
	var qty int64
	var value float64
	for _, item := range items {
		qty += item.Quantity
		value += item.LineValue()
	}
	return qty, value
}
