package main

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jzelinskie/cobrautil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pgsync-io/pgsync/internal/ddl"
	"github.com/pgsync-io/pgsync/internal/options"
	"github.com/pgsync-io/pgsync/internal/pgcat"
	"github.com/pgsync-io/pgsync/internal/streams"
	"github.com/pgsync-io/pgsync/internal/tree"
	"github.com/pgsync-io/pgsync/internal/util"
)

// newBootstrapCmd installs (or, with --teardown, removes) the trigger functions, the
// per-table triggers, the helper view, and the replication slot every Sync in the config
// file needs (spec.md §4.5).
func newBootstrapCmd(ctx context.Context, s streams.IO) *cobra.Command {
	o := &bootstrapOptions{IO: s}
	cmd := &cobra.Command{
		Use:     "bootstrap",
		Short:   "install or tear down the triggers, replication slot, and helper view a schema needs",
		Example: "  pgsync bootstrap --config schema.json",
		PreRunE: util.ZeroLogPreRunEFunc(o.IO.Out),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			return o.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&o.Config.MappingFile, "config", "", "path to the schema file")
	cmd.Flags().StringVar(&o.Postgres.PostgresURI, "postgres-uri", "", "postgres connection URI")
	cmd.Flags().BoolVar(&o.Teardown, "teardown", false, "remove the installed triggers, slot, and view instead of creating them")
	cmd.Flags().BoolVar(&o.NoCreate, "no-create", false, "verify privilege and refresh the helper view without touching triggers or the replication slot")
	cobrautil.RegisterZeroLogFlags(cmd.Flags(), "log")
	return cmd
}

type bootstrapOptions struct {
	IO streams.IO

	Config   options.ConfigOptions
	Postgres options.PostgresOptions

	Teardown bool
	NoCreate bool
}

func (o *bootstrapOptions) Complete() error {
	if err := o.Config.Complete(); err != nil {
		return err
	}
	return o.Postgres.Complete()
}

func (o *bootstrapOptions) Run(ctx context.Context) error {
	pool, err := pgxpool.ConnectConfig(ctx, o.Postgres.PoolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	for _, sync := range o.Config.Document {
		log.Info().Str("database", sync.Database).Str("index", sync.IndexName()).Msg("reflecting catalog")
		cat, err := pgcat.Reflect(ctx, pool, tree.RequiredTables(sync))
		if err != nil {
			return err
		}

		if o.Teardown {
			log.Info().Str("database", sync.Database).Msg("tearing down")
			if err := ddl.Teardown(ctx, pool, sync.Database, cat); err != nil {
				return err
			}
			continue
		}

		log.Info().Str("database", sync.Database).Bool("no_create", o.NoCreate).Msg("bootstrapping")
		if err := ddl.Setup(ctx, pool, sync.Database, cat, o.NoCreate); err != nil {
			return err
		}
	}
	return nil
}
