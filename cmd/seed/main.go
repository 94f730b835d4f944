// Command seed creates the first administrator. Running it again with the
// same email leaves the existing account untouched.
package main

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/config"
	"github.com/aldoetobex/legal-aid-backend/pkg/database"
	"github.com/aldoetobex/legal-aid-backend/pkg/logging"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.AppEnv, cfg.LogLevel)

	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")))
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || len(password) < 8 {
		log.Error("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD (min 8 chars) are required")
		os.Exit(2)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}

	created, err := seedAdmin(db, email, password)
	if err != nil {
		log.Error("seed admin", "error", err)
		os.Exit(1)
	}
	if created {
		log.Info("admin created", "email", email)
	} else {
		log.Info("admin already exists", "email", email)
	}
}

func seedAdmin(db *gorm.DB, email, password string) (bool, error) {
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role != models.RoleAdmin {
			return false, errors.New("email belongs to a non-admin user")
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		u := models.User{Email: email, PasswordHash: string(hash), Role: models.RoleAdmin, Name: "Administrator"}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		return tx.Create(&models.AdminProfile{
			UserID:      u.ID,
			Permissions: datatypes.JSONSlice[models.Permission](models.Permissions()),
		}).Error
	})
	return err == nil, err
}
