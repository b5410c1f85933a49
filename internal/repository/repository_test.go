package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/models"
)

var testDBCounter int

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	testDBCounter++
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", testDBCounter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Activity{},
		&models.Exercise{},
		&models.Submission{},
		&models.ExerciseAttempt{},
		&models.RiskReport{},
		&models.ActivityDocument{},
		&models.LearningSession{},
		&models.ChatMessage{},
	))

	return db
}
