package storage

import (
	"context"
	"embed"
	"io/fs"

	"github.com/shuttercraft/studiobook/libs/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func migrations() fs.FS {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func Migrate(ctx context.Context, pool *db.Pool) error {
	return db.Migrate(ctx, pool, migrations())
}
