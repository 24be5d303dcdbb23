package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcp-pantry/internal/models"
)

func (s *SQLiteStorage) AddHistory(ctx context.Context, rec *models.FoodHistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO food_history (id, food_name, quantity, unit, category, action, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, rec.ID, rec.FoodName, rec.Quantity, rec.Unit, string(rec.Category), string(rec.Action),
		formatTime(rec.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// ListHistory returns the newest records first.
func (s *SQLiteStorage) ListHistory(ctx context.Context, limit int) ([]*models.FoodHistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, food_name, quantity, unit, category, action, recorded_at
        FROM food_history
        ORDER BY recorded_at DESC, id
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*models.FoodHistoryRecord
	for rows.Next() {
		rec := &models.FoodHistoryRecord{}
		var category, action, recorded string
		err := rows.Scan(&rec.ID, &rec.FoodName, &rec.Quantity, &rec.Unit, &category, &action, &recorded)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.Category = models.Category(category)
		rec.Action = models.HistoryAction(action)
		if rec.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
