package db

import (
	"path/filepath"
	"testing"

	"github.com/haven-org/haven/internal/config"
	"github.com/haven-org/haven/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Name: "haven"},
			want: []string{"root@tcp(127.0.0.1:3306)/haven?", "parseTime=true"},
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, User: "haven", Password: "pw", Name: "haven_prod"},
			want: []string{"haven:pw@tcp(10.0.0.5:3307)/haven_prod?"},
		},
		{
			name: "server level",
			cfg:  config.DatabaseConfig{Host: "db.internal", Port: 3306, User: "root"},
			want: []string{"root@tcp(db.internal:3306)/?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestConnect_SQLiteMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "haven.db")}
	gormDB, err := Connect(cfg)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	require.NoError(t, AutoMigrate(gormDB))

	assert.True(t, gormDB.Migrator().HasTable(&models.Setting{}))
	assert.True(t, gormDB.Migrator().HasIndex(&models.Setting{}, "Key"))

	// Migrating twice is a no-op.
	require.NoError(t, AutoMigrate(gormDB))
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: config.DriverMongoDB})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a SQL driver")
}

func TestConnect_MySQLError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(config.DatabaseConfig{Driver: config.DriverMySQL, Host: "127.0.0.1", Port: 1, User: "root", Name: "nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: connect to mysql")
}

func TestConnectAdmin_Error(t *testing.T) {
	_, err := ConnectAdmin(config.DatabaseConfig{Driver: config.DriverMySQL, Host: "127.0.0.1", Port: 1, User: "root"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: admin connect to")
}

func TestAllModels_Count(t *testing.T) {
	assert.Len(t, AllModels(), 1)
}
