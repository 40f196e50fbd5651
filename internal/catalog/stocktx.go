package catalog

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StockTx is the product stock store scoped to one transaction. The ledger
// applier is its only caller: every read locks the product row and every write
// is a conditional decrement/increment, so a validate-then-apply sequence on
// the same StockTx is serializable against concurrent approvals of the same
// products.
type StockTx struct {
	tx pgx.Tx
}

// NewStockTx wraps an open transaction.
func NewStockTx(tx pgx.Tx) *StockTx {
	return &StockTx{tx: tx}
}

// GetStockForUpdate locks the referenced product rows and returns their
// current quantities. Rows are locked in sorted id order so two approvals
// touching overlapping product sets cannot deadlock.
func (s *StockTx) GetStockForUpdate(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	ids := make([]uuid.UUID, len(productIDs))
	copy(ids, productIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	stock := make(map[uuid.UUID]int64, len(ids))
	for _, id := range ids {
		if _, seen := stock[id]; seen {
			continue
		}
		var qty int64
		err := s.tx.QueryRow(ctx,
			`SELECT stock_quantity FROM products WHERE company_id = $1 AND id = $2 FOR UPDATE`,
			companyID, id).Scan(&qty)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrProductNotFound
			}
			return nil, err
		}
		stock[id] = qty
	}
	return stock, nil
}

// AdjustStock applies a signed delta to a product's stock quantity. The WHERE
// clause refuses any update that would leave the quantity negative; a zero
// affected-row count on an existing product means the guard upstream was
// wrong, reported as ErrNegativeStock.
func (s *StockTx) AdjustStock(ctx context.Context, companyID, productID uuid.UUID, delta int64) (int64, error) {
	var newQty int64
	err := s.tx.QueryRow(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW()
WHERE company_id = $2 AND id = $3 AND stock_quantity + $1 >= 0
RETURNING stock_quantity`,
		delta, companyID, productID).Scan(&newQty)
	if err != nil {
		if err == pgx.ErrNoRows {
			var exists bool
			if checkErr := s.tx.QueryRow(ctx,
				`SELECT true FROM products WHERE company_id = $1 AND id = $2`,
				companyID, productID).Scan(&exists); checkErr == nil && exists {
				return 0, ErrNegativeStock
			}
			return 0, ErrProductNotFound
		}
		return 0, err
	}
	return newQty, nil
}
