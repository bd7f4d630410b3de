package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/shopease/shop-ease-backend/internal/database/migrations"
)

// gooseUp is swapped in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
