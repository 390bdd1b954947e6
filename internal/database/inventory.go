package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
)

const itemColumns = `id, hotel_id, name, quantity, unit_price, created_at`

const txColumns = `id, item_id, hotel_id, item_name, quantity, unit_price, total_cost, status, created_at, completed_at`

func scanItem(row rowScanner) (*models.InventoryItem, error) {
	var it models.InventoryItem
	if err := row.Scan(&it.ID, &it.HotelID, &it.Name, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func scanTransaction(row rowScanner) (*models.InventoryTransaction, error) {
	var t models.InventoryTransaction
	err := row.Scan(&t.ID, &t.ItemID, &t.HotelID, &t.ItemName, &t.Quantity, &t.UnitPrice, &t.TotalCost,
		&t.Status, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO inventory_items (hotel_id, name, quantity, unit_price, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.HotelID, item.Name, item.Quantity, item.UnitPrice, now)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	return nil
}

func (db *DB) GetItem(ctx context.Context, id int64) (*models.InventoryItem, error) {
	it, err := scanItem(db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "inventory item", id)
	}
	return it, nil
}

func (db *DB) ListItemsByHotel(ctx context.Context, hotelID int64) ([]*models.InventoryItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE hotel_id = ? ORDER BY name, id`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []*models.InventoryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteItem removes an item that has no Pending transactions. Completed
// transactions stay as history.
func (db *DB) DeleteItem(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var pending int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM inventory_transactions WHERE item_id = ? AND status = ?`,
			id, models.TxPending).Scan(&pending)
		if err != nil {
			return fmt.Errorf("failed to count pending orders: %w", err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: item %d has %d pending order(s)", models.ErrHasPendingOrders, id, pending)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: inventory item %d", models.ErrNotFound, id)
		}
		return nil
	})
}

// CreateTransaction places a Pending order. Unit price and total cost are
// copied from the item row read inside the same transaction.
func (db *DB) CreateTransaction(ctx context.Context, itemID, quantity int64) (*models.InventoryTransaction, error) {
	var created *models.InventoryTransaction
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		item, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, itemID))
		if err != nil {
			return notFound(err, "inventory item", itemID)
		}

		t := &models.InventoryTransaction{
			ItemID:    item.ID,
			HotelID:   item.HotelID,
			ItemName:  item.Name,
			Quantity:  quantity,
			UnitPrice: item.UnitPrice,
			Status:    models.TxPending,
			CreatedAt: time.Now(),
		}
		t.TotalCost = item.UnitPrice.Mul(decimal.NewFromInt(quantity))

		result, err := tx.ExecContext(ctx,
			`INSERT INTO inventory_transactions (item_id, hotel_id, item_name, quantity, unit_price, total_cost, status, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ItemID, t.HotelID, t.ItemName, t.Quantity, t.UnitPrice, t.TotalCost, t.Status, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		if t.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (db *DB) GetTransaction(ctx context.Context, id int64) (*models.InventoryTransaction, error) {
	t, err := scanTransaction(db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM inventory_transactions WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "inventory transaction", id)
	}
	return t, nil
}

func (db *DB) ListTransactionsByHotel(ctx context.Context, hotelID int64) ([]*models.InventoryTransaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM inventory_transactions WHERE (? = 0 OR hotel_id = ?) ORDER BY created_at DESC, id DESC`,
		hotelID, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []*models.InventoryTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CompleteTransaction marks a Pending transaction Completed and adds its
// quantity to the item in one transaction. The status guard makes the
// stock increment happen at most once.
func (db *DB) CompleteTransaction(ctx context.Context, id int64) (*models.InventoryTransaction, error) {
	now := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE inventory_transactions SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
			models.TxCompleted, now, id, models.TxPending)
		if err != nil {
			return fmt.Errorf("failed to complete transaction: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			var status string
			if err := tx.QueryRowContext(ctx, `SELECT status FROM inventory_transactions WHERE id = ?`, id).Scan(&status); err != nil {
				return notFound(err, "inventory transaction", id)
			}
			return fmt.Errorf("%w: transaction %d", models.ErrAlreadyCompleted, id)
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE inventory_items SET quantity = quantity + (SELECT quantity FROM inventory_transactions WHERE id = ?)
             WHERE id = (SELECT item_id FROM inventory_transactions WHERE id = ?)`, id, id)
		if err != nil {
			return fmt.Errorf("failed to apply stock delta: %w", err)
		}
		if n, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: item of transaction %d", models.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetTransaction(ctx, id)
}
