package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcp-pantry/internal/models"
)

func (s *SQLiteStorage) SaveFamilyMember(ctx context.Context, m *models.FamilyMember) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	restrictions, err := json.Marshal(nonNil(m.DietaryRestrictions))
	if err != nil {
		return fmt.Errorf("failed to marshal dietary restrictions: %w", err)
	}
	allergies, err := json.Marshal(nonNil(m.Allergies))
	if err != nil {
		return fmt.Errorf("failed to marshal allergies: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO family_members (id, name, gender, age, height_cm, weight_kg, activity_level,
            dietary_restrictions, allergies, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name, gender = excluded.gender, age = excluded.age,
            height_cm = excluded.height_cm, weight_kg = excluded.weight_kg,
            activity_level = excluded.activity_level,
            dietary_restrictions = excluded.dietary_restrictions,
            allergies = excluded.allergies
    `,
		m.ID, m.Name, string(m.Gender), m.Age, m.HeightCm, m.WeightKg, string(m.ActivityLevel),
		string(restrictions), string(allergies), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save family member: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListFamilyMembers(ctx context.Context) ([]*models.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, gender, age, height_cm, weight_kg, activity_level,
            dietary_restrictions, allergies, created_at
        FROM family_members
        ORDER BY created_at, id
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}
	defer rows.Close()

	var members []*models.FamilyMember
	for rows.Next() {
		m := &models.FamilyMember{}
		var gender, activity, restrictions, allergies, created string
		err := rows.Scan(&m.ID, &m.Name, &gender, &m.Age, &m.HeightCm, &m.WeightKg, &activity,
			&restrictions, &allergies, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		m.Gender = models.Gender(gender)
		m.ActivityLevel = models.ActivityLevel(activity)
		if err := json.Unmarshal([]byte(restrictions), &m.DietaryRestrictions); err != nil {
			return nil, fmt.Errorf("failed to decode dietary restrictions: %w", err)
		}
		if err := json.Unmarshal([]byte(allergies), &m.Allergies); err != nil {
			return nil, fmt.Errorf("failed to decode allergies: %w", err)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStorage) DeleteFamilyMember(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM family_members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete family member: %w", err)
	}
	return checkAffected(res)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
