// Package testdb opens the Postgres database used by integration tests.
//
// Tests that need it are skipped when TEST_DATABASE_URL is unset. Packages
// share one database and truncate it on cleanup, so run them with -p 1.
package testdb

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/pkg/database"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

const truncateSQL = `
TRUNCATE TABLE
	ratings,
	case_documents,
	case_deadlines,
	case_notes,
	case_activities,
	cases,
	case_sequences,
	admin_profiles,
	solicitor_profiles,
	client_profiles,
	users
RESTART IDENTITY CASCADE`

// Open connects to TEST_DATABASE_URL, migrates, and truncates every table
// after the test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Exec(truncateSQL).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// User inserts a user with the given role and a matching empty profile.
// Password is always "password123".
func User(t *testing.T, db *gorm.DB, role models.Role) models.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	u := models.User{
		ID:           uuid.New(),
		Email:        string(role) + "_" + uuid.NewString()[:8] + "@x.com",
		PasswordHash: string(hash),
		Role:         role,
		Name:         "Test " + string(role),
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	var p any
	switch role {
	case models.RoleClient:
		p = &models.ClientProfile{UserID: u.ID}
	case models.RoleAdmin:
		p = &models.AdminProfile{UserID: u.ID, Permissions: datatypes.JSONSlice[models.Permission](models.Permissions())}
	default:
		return u
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return u
}

// Solicitor inserts a solicitor user with a profile.
func Solicitor(t *testing.T, db *gorm.DB, verified bool, maxCases int, specs ...models.CaseType) models.User {
	t.Helper()
	u := User(t, db, models.RoleSolicitor)
	p := models.SolicitorProfile{
		UserID:          u.ID,
		SolicitorNumber: "SRA-" + u.ID.String()[:8],
		Specializations: datatypes.JSONSlice[models.CaseType](specs),
		Verified:        verified,
		MaxCases:        maxCases,
	}
	// gorm skips zero-valued fields that carry a default
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create solicitor profile: %v", err)
	}
	if err := db.Model(&p).Updates(map[string]any{"verified": verified, "max_cases": maxCases}).Error; err != nil {
		t.Fatalf("update solicitor profile: %v", err)
	}
	return u
}

// Case inserts a case directly, bypassing numbering.
func Case(t *testing.T, db *gorm.DB, clientID uuid.UUID, typ models.CaseType, status models.CaseStatus, assignee *uuid.UUID) models.Case {
	t.Helper()
	cs := models.Case{
		ID:                  uuid.New(),
		CaseNumber:          "TEST-" + uuid.NewString()[:12],
		ClientID:            clientID,
		AssignedSolicitorID: assignee,
		Type:                typ,
		Status:              status,
		Priority:            models.PriorityMedium,
		Description:         "Landlord has not returned my deposit",
		ExpectedResponseBy:  time.Now().Add(48 * time.Hour),
	}
	if err := db.Create(&cs).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}
	return cs
}
