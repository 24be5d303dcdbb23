package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"mcp-pantry/internal/models"
)

type AddFamilyMemberParams struct {
	ID                  string   `json:"id,omitempty" description:"Existing member to update"`
	Name                string   `json:"name"`
	Gender              string   `json:"gender" description:"male or female"`
	Age                 int      `json:"age"`
	HeightCm            float64  `json:"height_cm"`
	WeightKg            float64  `json:"weight_kg"`
	ActivityLevel       string   `json:"activity_level" description:"sedentary, light, moderate, active or very_active"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	Allergies           []string `json:"allergies,omitempty"`
}

type DeleteFamilyMemberParams struct {
	ID string `json:"id"`
}

type GetHistoryParams struct {
	Limit int `json:"limit,omitempty" description:"Maximum number of records (defaults to 50)"`
}

type memberView struct {
	*models.FamilyMember
	DailyCalories int `json:"daily_calories"`
}

type familyView struct {
	Members             []memberView `json:"members"`
	TotalDailyCalories  int          `json:"total_daily_calories"`
	DietaryRestrictions []string     `json:"dietary_restrictions"`
	Allergies           []string     `json:"allergies"`
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *PantryServer) handleAddFamilyMember(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AddFamilyMemberParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	member := &models.FamilyMember{
		ID:                  params.ID,
		Name:                strings.TrimSpace(params.Name),
		Gender:              models.Gender(strings.ToLower(strings.TrimSpace(params.Gender))),
		Age:                 params.Age,
		HeightCm:            params.HeightCm,
		WeightKg:            params.WeightKg,
		ActivityLevel:       models.ActivityLevel(strings.ToLower(strings.TrimSpace(params.ActivityLevel))),
		DietaryRestrictions: cleanList(params.DietaryRestrictions),
		Allergies:           cleanList(params.Allergies),
	}
	if err := member.Validate(); err != nil {
		return nil, invalidParams("%v", err)
	}

	if err := s.storage.SaveFamilyMember(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to save family member: %w", err)
	}
	return s.createJSONResponse(memberView{FamilyMember: member, DailyCalories: member.DailyCalories()})
}

func (s *PantryServer) familyProfile(ctx context.Context) (*models.FamilyProfile, error) {
	members, err := s.storage.ListFamilyMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list family members: %w", err)
	}
	return &models.FamilyProfile{Members: members}, nil
}

func (s *PantryServer) handleListFamilyMembers(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	profile, err := s.familyProfile(ctx)
	if err != nil {
		return nil, err
	}

	view := familyView{
		Members:             []memberView{},
		TotalDailyCalories:  profile.TotalDailyCalories(),
		DietaryRestrictions: nonNilStrings(profile.DietaryRestrictions()),
		Allergies:           nonNilStrings(profile.Allergies()),
	}
	for _, m := range profile.Members {
		view.Members = append(view.Members, memberView{FamilyMember: m, DailyCalories: m.DailyCalories()})
	}
	return s.createJSONResponse(view)
}

func (s *PantryServer) handleDeleteFamilyMember(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DeleteFamilyMemberParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}

	if err := s.storage.DeleteFamilyMember(ctx, params.ID); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{"deleted": true, "id": params.ID})
}

func (s *PantryServer) handleGetHistory(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetHistoryParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	records, err := s.storage.ListHistory(ctx, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve history: %w", err)
	}
	if records == nil {
		records = []*models.FoodHistoryRecord{}
	}
	return s.createJSONResponse(records)
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
