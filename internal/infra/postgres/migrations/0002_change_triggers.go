package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_change_triggers.sql
var changeTriggersSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, changeTriggersSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TRIGGER IF EXISTS participants_notify ON participants;
DROP TRIGGER IF EXISTS games_notify ON games;
DROP FUNCTION IF EXISTS notify_row_change();
`)
			return err
		},
	)
}
