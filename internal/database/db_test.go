package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_DSN(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
	}{
		{
			name: "mysql with password",
			opts: Options{Driver: DriverMySQL, User: "app", Pass: "s3cret", Host: "db", Port: "3306", Name: "newsroom"},
			want: "app:s3cret@tcp(db:3306)/newsroom?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		},
		{
			name: "mysql without password",
			opts: Options{Driver: DriverMySQL, User: "app", Host: "db", Port: "3306", Name: "newsroom"},
			want: "app@tcp(db:3306)/newsroom?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		},
		{name: "sqlite file", opts: Options{Driver: DriverSQLite, Path: "data/auth.db"}, want: "data/auth.db"},
		{name: "sqlite default", opts: Options{Driver: DriverSQLite}, want: ":memory:"},
		{name: "unknown driver", opts: Options{Driver: "oracle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.DSN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Options{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, DriverSQLite))
	// Re-running is a no-op.
	require.NoError(t, Migrate(db, DriverSQLite))

	for _, table := range []string{"users", "refresh_tokens", "roles", "permissions", "role_permissions", "user_roles"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}
