package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcp-pantry/internal/models"
)

func (s *SQLiteStorage) SaveShoppingItem(ctx context.Context, item *models.ShoppingListItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO shopping_list_items (id, name, quantity, unit, category, purchased, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, item.ID, item.Name, item.Quantity, item.Unit, string(item.Category), item.Purchased,
		formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert shopping item: %w", err)
	}
	return nil
}

// ListShoppingItems returns unpurchased items first, oldest first within
// each half. With includePurchased false only open items are returned.
func (s *SQLiteStorage) ListShoppingItems(ctx context.Context, includePurchased bool) ([]*models.ShoppingListItem, error) {
	query := `
        SELECT id, name, quantity, unit, category, purchased, created_at
        FROM shopping_list_items
    `
	if !includePurchased {
		query += " WHERE purchased = 0"
	}
	query += " ORDER BY purchased, created_at, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query shopping items: %w", err)
	}
	defer rows.Close()

	var items []*models.ShoppingListItem
	for rows.Next() {
		item := &models.ShoppingListItem{}
		var category, created string
		err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.Unit, &category,
			&item.Purchased, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shopping item: %w", err)
		}
		item.Category = models.Category(category)
		if item.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) SetShoppingPurchased(ctx context.Context, id string, purchased bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shopping_list_items SET purchased = ? WHERE id = ?`, purchased, id)
	if err != nil {
		return fmt.Errorf("failed to update shopping item: %w", err)
	}
	return checkAffected(res)
}

func (s *SQLiteStorage) DeleteShoppingItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shopping item: %w", err)
	}
	return checkAffected(res)
}

// RestockShoppingItem adds item to the inventory and removes the shopping
// entry it came from. Either both happen or neither does.
func (s *SQLiteStorage) RestockShoppingItem(ctx context.Context, entryID string, item *models.FoodItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete shopping item: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if err := saveFoodItem(ctx, tx, item); err != nil {
		return err
	}
	return tx.Commit()
}
