package cli

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/config"
	infrapg "partyquiz-service/internal/infra/postgres"
)

// NewImportCmd bulk-loads a CSV quiz file straight into the configured
// Postgres store.
func NewImportCmd(configPath *string) *cobra.Command {
	var (
		file string
		name string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV quiz file into a new quiz set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}

			sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
			db := bun.NewDB(sqldb, pgdialect.New())
			defer db.Close()

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			importer := app.NewImporter(infrapg.NewStore(db))
			rows, err := importer.ParseCSV(f)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				log.Printf("nothing to import")
				return nil
			}
			if name == "" {
				name = app.DeriveName(rows)
			}

			report, err := importer.Import(cmd.Context(), name, rows)
			if err != nil {
				return err
			}
			log.Printf("imported quiz set %q: %d questions, %d choices", report.QuizSet.Name, report.Questions, report.Choices)
			for _, issue := range report.Issues {
				log.Printf("row %d: %s", issue.Row, issue.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the CSV file")
	cmd.Flags().StringVar(&name, "name", "", "name for the new quiz set (default: derived from the first question)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
