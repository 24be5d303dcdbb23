// internal/models/family.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

var activityFactors = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

type FamilyMember struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Gender              Gender        `json:"gender"`
	Age                 int           `json:"age"`
	HeightCm            float64       `json:"height_cm"`
	WeightKg            float64       `json:"weight_kg"`
	ActivityLevel       ActivityLevel `json:"activity_level"`
	DietaryRestrictions []string      `json:"dietary_restrictions,omitempty"`
	Allergies           []string      `json:"allergies,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

func (m *FamilyMember) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("member name is required")
	}
	if m.Gender != GenderMale && m.Gender != GenderFemale {
		return fmt.Errorf("unknown gender %q", m.Gender)
	}
	if _, ok := activityFactors[m.ActivityLevel]; !ok {
		return fmt.Errorf("unknown activity level %q", m.ActivityLevel)
	}
	if m.Age < 1 || m.Age > 120 {
		return fmt.Errorf("age %d out of range", m.Age)
	}
	if m.HeightCm < 50 || m.HeightCm > 250 || m.WeightKg < 3 || m.WeightKg > 400 {
		return errors.New("height/weight out of plausible range")
	}
	return nil
}

// BasalMetabolicRate uses the revised Harris-Benedict equations.
func (m *FamilyMember) BasalMetabolicRate() float64 {
	if m.Gender == GenderFemale {
		return 447.593 + 9.247*m.WeightKg + 3.098*m.HeightCm - 4.330*float64(m.Age)
	}
	return 88.362 + 13.397*m.WeightKg + 4.799*m.HeightCm - 5.677*float64(m.Age)
}

// DailyCalories is the BMR scaled by the member's activity factor. Unknown
// activity levels are treated as sedentary.
func (m *FamilyMember) DailyCalories() int {
	factor, ok := activityFactors[m.ActivityLevel]
	if !ok {
		factor = activityFactors[ActivitySedentary]
	}
	return int(m.BasalMetabolicRate()*factor + 0.5)
}

type FamilyProfile struct {
	Members []*FamilyMember `json:"members"`
}

func (p *FamilyProfile) TotalDailyCalories() int {
	total := 0
	for _, m := range p.Members {
		total += m.DailyCalories()
	}
	return total
}

func (p *FamilyProfile) DietaryRestrictions() []string {
	return p.union(func(m *FamilyMember) []string { return m.DietaryRestrictions })
}

func (p *FamilyProfile) Allergies() []string {
	return p.union(func(m *FamilyMember) []string { return m.Allergies })
}

func (p *FamilyProfile) union(pick func(*FamilyMember) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range p.Members {
		for _, v := range pick(m) {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
