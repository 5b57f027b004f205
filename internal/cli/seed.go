package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"license-exam-service/internal/config"
	"license-exam-service/internal/infra/memory"
	"license-exam-service/internal/infra/postgres"
	"license-exam-service/internal/logger"
)

// NewSeedCmd copies the question-set catalog file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load question sets from a catalog file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if catalog == "" {
				catalog = cfg.QuestionSets.Path
			}
			return runSeed(cmd.Context(), cfg, catalog)
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog file (defaults to questionSets.path)")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, catalog string) error {
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if catalog == "" {
		return fmt.Errorf("no catalog file given")
	}
	if err := runMigrations(ctx, cfg, log); err != nil {
		return err
	}

	sets, err := memory.LoadCatalogFile(catalog)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := postgres.NewQuestionSetLoader(pool)
	for id, set := range sets {
		if err := loader.SaveQuestionSet(ctx, set); err != nil {
			return err
		}
		log.Info().Str("question_set_id", id).Int("questions", set.Len()).Msg("question set seeded")
	}
	return nil
}
