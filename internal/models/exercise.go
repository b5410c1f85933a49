package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Exercise status values.
const (
	ExerciseStatusDraft     = "draft"
	ExerciseStatusPublished = "published"
)

// Exercise is a programming problem attached to an activity.
type Exercise struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID       string         `gorm:"size:64;not null;index" json:"activity_id"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	ProblemStatement string         `gorm:"type:text" json:"problem_statement"`
	StarterCode      string         `gorm:"type:text" json:"starter_code"`
	SolutionCode     string         `gorm:"type:text" json:"solution_code"`
	Difficulty       string         `gorm:"size:32" json:"difficulty"`
	Language         string         `gorm:"size:32" json:"language"`
	Status           string         `gorm:"size:16;not null;default:draft" json:"status"`
	TestCases        datatypes.JSON `json:"test_cases"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (e *Exercise) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Activity is the thin academic container exercises and documents hang off.
// Full academic CRUD lives outside this service.
type Activity struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Language  string    `gorm:"size:32" json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
