package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/models"
)

// DefaultLabServices is the service catalogue seeded on first start.
var DefaultLabServices = []models.LabService{
	{Name: "3D printing", Description: "FDM and resin printing of prototypes and parts", Active: true},
	{Name: "Laser cutting", Description: "Cutting and engraving of wood, acrylic and fabric", Active: true},
	{Name: "CNC milling", Description: "Subtractive machining of wood and soft metals", Active: true},
	{Name: "Electronics prototyping", Description: "Soldering stations, microcontrollers and test equipment", Active: true},
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Badge{},
		&models.RegistrationRequest{},
		&models.Session{},
		&models.PasswordResetToken{},
		&models.AuditLog{},
		&models.EventRequest{},
		&models.LabService{},
		&models.InterestInquiry{},
	)
}

// SeedData inserts the default lab service catalogue without touching existing rows.
func SeedData(db *gorm.DB) error {
	for _, service := range DefaultLabServices {
		if err := db.Where(models.LabService{Name: service.Name}).
			Attrs(service).
			FirstOrCreate(&models.LabService{}).Error; err != nil {
			return err
		}
	}
	return nil
}
