package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"socialblog/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, RunMigrations(db, zap.NewNop()))
	return db
}

func TestSeedRoles(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, SeedRoles(db))

	var roles []models.Role
	db.Order("id").Find(&roles)
	assert.Len(t, roles, 3)

	var defaults int64
	db.Model(&models.Role{}).Where("is_default = ?", true).Count(&defaults)
	assert.Equal(t, int64(1), defaults)

	var admin models.Role
	require.NoError(t, db.Where("name = ?", models.RoleAdministrator).First(&admin).Error)
	assert.Equal(t, 0xff, admin.Permissions)
}

func TestSeedRoles_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, SeedRoles(db))
	var before models.Role
	db.Where("name = ?", models.RoleUser).First(&before)

	require.NoError(t, SeedRoles(db))

	var count int64
	db.Model(&models.Role{}).Count(&count)
	assert.Equal(t, int64(3), count)

	var after models.Role
	db.Where("name = ?", models.RoleUser).First(&after)
	assert.Equal(t, before.ID, after.ID)
}

func TestSeedRoles_RepairsDrift(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SeedRoles(db))

	db.Model(&models.Role{}).Where("name = ?", models.RoleModerator).
		Updates(map[string]interface{}{"permissions": 0, "is_default": true})

	require.NoError(t, SeedRoles(db))

	var mod models.Role
	db.Where("name = ?", models.RoleModerator).First(&mod)
	assert.Equal(t, int(models.PermFollow|models.PermComment|models.PermWriteArticles|models.PermModerateComments), mod.Permissions)
	assert.False(t, mod.Default)
}
