package database

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"socialblog/models"
)

func RunMigrations(db *gorm.DB, l *zap.Logger) error {
	l.Info("running database migrations")

	err := db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Follow{},
		&models.Post{},
		&models.Comment{},
	)

	if err != nil {
		l.Error("error running migrations", zap.Error(err))
		return err
	}

	l.Info("migrations completed")
	return nil
}

// SeedRoles inserts or updates the built-in roles by name. Running it again
// never duplicates a role; it resets permissions and the default flag.
func SeedRoles(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, def := range models.DefaultRoles {
			var role models.Role
			err := tx.Where("name = ?", def.Name).First(&role).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find role %s: %w", def.Name, err)
			}

			role.Name = def.Name
			role.Permissions = int(def.Permissions)
			role.Default = def.Default
			if err := tx.Save(&role).Error; err != nil {
				return fmt.Errorf("save role %s: %w", def.Name, err)
			}
		}
		return nil
	})
}
