package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcp-pantry/internal/grouping"
	"mcp-pantry/internal/models"
)

const foodItemColumns = `id, group_id, name, quantity, unit, category, purchase_date,
        expiration_date, storage_location, image_path, created_at`

// SaveFoodItem inserts item, joining the food group whose base name matches
// or creating a new one. item.ID, item.GroupID and item.CreatedAt are set.
func (s *SQLiteStorage) SaveFoodItem(ctx context.Context, item *models.FoodItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveFoodItem(ctx, tx, item); err != nil {
		return err
	}
	return tx.Commit()
}

func saveFoodItem(ctx context.Context, tx *sql.Tx, item *models.FoodItem) error {
	groups, err := loadGroupHeaders(ctx, tx)
	if err != nil {
		return err
	}

	group := grouping.FindGroup(groups, item.Name, item.Category)
	if group == nil {
		group = &models.FoodGroup{
			ID:        uuid.NewString(),
			BaseName:  grouping.NormalizeBaseName(item.Name),
			Category:  item.Category,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO food_groups (id, base_name, category, created_at) VALUES (?, ?, ?, ?)`,
			group.ID, group.BaseName, string(group.Category), formatTime(group.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert food group: %w", err)
		}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.GroupID = group.ID

	_, err = tx.ExecContext(ctx, `
        INSERT INTO food_items (`+foodItemColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		item.ID, item.GroupID, item.Name, item.Quantity, item.Unit, string(item.Category),
		formatTime(item.PurchaseDate), formatNullTime(item.ExpirationDate),
		string(item.StorageLocation), item.ImagePath, formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert food item: %w", err)
	}
	return nil
}

func loadGroupHeaders(ctx context.Context, tx *sql.Tx) ([]*models.FoodGroup, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, base_name, category, created_at FROM food_groups ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query food groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.FoodGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row scanner) (*models.FoodGroup, error) {
	g := &models.FoodGroup{}
	var category, createdAt string
	if err := row.Scan(&g.ID, &g.BaseName, &category, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan food group: %w", err)
	}
	g.Category = models.Category(category)
	var err error
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return g, nil
}

func scanFoodItem(row scanner) (*models.FoodItem, error) {
	item := &models.FoodItem{}
	var category, location, purchase, created string
	var expiration sql.NullString

	err := row.Scan(&item.ID, &item.GroupID, &item.Name, &item.Quantity, &item.Unit,
		&category, &purchase, &expiration, &location, &item.ImagePath, &created)
	if err != nil {
		return nil, err
	}

	item.Category = models.Category(category)
	item.StorageLocation = models.StorageLocation(location)
	if item.PurchaseDate, err = parseTime(purchase); err != nil {
		return nil, fmt.Errorf("failed to parse purchase_date: %w", err)
	}
	if item.ExpirationDate, err = parseNullTime(expiration); err != nil {
		return nil, fmt.Errorf("failed to parse expiration_date: %w", err)
	}
	if item.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return item, nil
}

func (s *SQLiteStorage) queryFoodItems(ctx context.Context, query string, args ...interface{}) ([]*models.FoodItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query food items: %w", err)
	}
	defer rows.Close()

	var items []*models.FoodItem
	for rows.Next() {
		item, err := scanFoodItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) GetFoodItem(ctx context.Context, id string) (*models.FoodItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+foodItemColumns+` FROM food_items WHERE id = ?`, id)
	item, err := scanFoodItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load food item %s: %w", id, err)
	}
	return item, nil
}

// ListFoodItems returns items in one storage location, or all items when
// location is empty.
func (s *SQLiteStorage) ListFoodItems(ctx context.Context, location models.StorageLocation) ([]*models.FoodItem, error) {
	query := `SELECT ` + foodItemColumns + ` FROM food_items WHERE 1=1`
	args := []interface{}{}
	if location != "" {
		query += " AND storage_location = ?"
		args = append(args, string(location))
	}
	query += " ORDER BY created_at, id"
	return s.queryFoodItems(ctx, query, args...)
}

// ExpiringItems returns items whose expiration date is at or before the
// cutoff, soonest first. Already expired items are included.
func (s *SQLiteStorage) ExpiringItems(ctx context.Context, cutoff time.Time) ([]*models.FoodItem, error) {
	return s.queryFoodItems(ctx, `
        SELECT `+foodItemColumns+`
        FROM food_items
        WHERE expiration_date IS NOT NULL AND expiration_date <= ?
        ORDER BY expiration_date, id
    `, formatTime(cutoff))
}

// ListFoodGroups loads every group with its items and recomputed totals.
func (s *SQLiteStorage) ListFoodGroups(ctx context.Context) ([]*models.FoodGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, base_name, category, created_at FROM food_groups ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query food groups: %w", err)
	}
	var groups []*models.FoodGroup
	byID := make(map[string]*models.FoodGroup)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		groups = append(groups, g)
		byID[g.ID] = g
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.ListFoodItems(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if g, ok := byID[item.GroupID]; ok {
			g.Items = append(g.Items, item)
		}
	}
	for _, g := range groups {
		g.Recompute()
	}
	return groups, nil
}

// UpdateFoodQuantity sets the remaining quantity of an item.
func (s *SQLiteStorage) UpdateFoodQuantity(ctx context.Context, id string, quantity float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE food_items SET quantity = ? WHERE id = ?`, quantity, id)
	if err != nil {
		return fmt.Errorf("failed to update food item: %w", err)
	}
	return checkAffected(res)
}

// DeleteFoodItem removes an item and its group if the group became empty.
func (s *SQLiteStorage) DeleteFoodItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var groupID string
	err = tx.QueryRowContext(ctx, `SELECT group_id FROM food_items WHERE id = ?`, id).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up food item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM food_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete food item: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
        DELETE FROM food_groups
        WHERE id = ? AND NOT EXISTS (SELECT 1 FROM food_items WHERE group_id = ?)
    `, groupID, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete empty food group: %w", err)
	}

	return tx.Commit()
}

// DeleteFoodGroup removes a group; its items go with it.
func (s *SQLiteStorage) DeleteFoodGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM food_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete food group: %w", err)
	}
	return checkAffected(res)
}
