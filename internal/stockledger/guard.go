package stockledger

import "github.com/google/uuid"

// GuardResult is the outcome of a pre-application stock check.
type GuardResult struct {
	OK         bool             `json:"ok"`
	Violations []StockViolation `json:"violations,omitempty"`
}

// CanApply decides whether an entry's lines can be applied against the given
// stock snapshot. Pure: it never touches storage, so the applier runs it over
// locked rows while the advisory check endpoint runs it over a plain read.
//
// Inward entries always pass. Outward entries aggregate requested quantity per
// product first, so two lines of the same product are checked against the
// combined demand, and every shortfall is reported rather than the first.
func CanApply(entry StockEntry, stock map[uuid.UUID]int64) GuardResult {
	if entry.EntryType == EntryTypeInward {
		return GuardResult{OK: true}
	}

	requested := make(map[uuid.UUID]int64)
	order := make([]uuid.UUID, 0, len(entry.Items))
	names := make(map[uuid.UUID]string)
	for _, item := range entry.Items {
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
		if names[item.ProductID] == "" {
			names[item.ProductID] = item.ProductName
		}
	}

	var violations []StockViolation
	for _, productID := range order {
		available := stock[productID]
		if requested[productID] > available {
			violations = append(violations, StockViolation{
				ProductID:   productID,
				ProductName: names[productID],
				Requested:   requested[productID],
				Available:   available,
			})
		}
	}
	if len(violations) > 0 {
		return GuardResult{OK: false, Violations: violations}
	}
	return GuardResult{OK: true}
}

// aggregateDeltas folds entry lines into one signed stock delta per product.
func aggregateDeltas(entry StockEntry) (map[uuid.UUID]int64, []uuid.UUID) {
	sign := int64(1)
	if entry.EntryType == EntryTypeOutward {
		sign = -1
	}
	deltas := make(map[uuid.UUID]int64)
	order := make([]uuid.UUID, 0, len(entry.Items))
	for _, item := range entry.Items {
		if _, seen := deltas[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		deltas[item.ProductID] += sign * item.Quantity
	}
	return deltas, order
}
