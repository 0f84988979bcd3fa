package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	_ "github.com/lib/pq" // registers the "postgres" driver goose migrates with
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens a Postgres connection at uri, runs migrations, and returns a
// Sink backed by it. Callers that don't configure a database skip Connect
// entirely and use NewNoop.
//
// Two separate connections are opened deliberately: gorm's query connection
// goes through pgx/v4's stdlib adapter (the same driver family the rest of
// the ecosystem favors for new code), while goose runs migrations over a
// plain lib/pq connection, matching how the teacher keeps its migration
// tooling (cmd/migrate.go) independent of the ORM runtime.
func Connect(ctx context.Context, uri string) (Sink, *gorm.DB, error) {
	pgxCfg, err := pgx.ParseConfig(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("audit: parse connection string: %w", err)
	}
	gormConn := stdlib.OpenDB(*pgxCfg)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: gormConn}), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, nil, fmt.Errorf("audit: open db: %w", err)
	}

	migrationConn, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, nil, fmt.Errorf("audit: open migration connection: %w", err)
	}
	defer migrationConn.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, nil, fmt.Errorf("audit: set dialect: %w", err)
	}
	logging.Log.Info("audit: running migrations")
	if err := goose.Up(migrationConn, "migrations"); err != nil {
		return nil, nil, fmt.Errorf("audit: run migrations: %w", err)
	}

	return NewGormSink(db), db, nil
}
