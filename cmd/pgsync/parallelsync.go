package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jzelinskie/cobrautil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pgsync-io/pgsync/internal/options"
	"github.com/pgsync-io/pgsync/internal/parallelsync"
	"github.com/pgsync-io/pgsync/internal/pgcat"
	"github.com/pgsync-io/pgsync/internal/streams"
	"github.com/pgsync-io/pgsync/internal/tree"
	"github.com/pgsync-io/pgsync/internal/util"
)

// newParallelSyncCmd runs a full backfill of every Sync in the config file, splitting
// each one across --nprocs workers per spec.md §9's worker-pool collapse.
func newParallelSyncCmd(ctx context.Context, s streams.IO) *cobra.Command {
	o := &parallelSyncOptions{IO: s}
	cmd := &cobra.Command{
		Use:     "parallel-sync",
		Short:   "backfill using tuple-id paging split across N workers",
		Example: "  pgsync parallel-sync --config schema.json --nprocs 4 --mode threaded",
		PreRunE: util.ZeroLogPreRunEFunc(o.IO.Out),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(ctx); err != nil {
				return err
			}
			return o.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&o.Config.MappingFile, "config", "", "path to the schema file")
	cmd.Flags().StringVar(&o.Postgres.PostgresURI, "postgres-uri", "", "postgres connection URI")
	cmd.Flags().StringSliceVar(&o.Search.Addresses, "search-addr", nil, "elasticsearch/opensearch addresses")
	cmd.Flags().StringVar(&o.Broker.RedisAddr, "redis-addr", "", "redis address for checkpoint storage (REDIS_CHECKPOINT)")
	cmd.Flags().StringVar(&o.Broker.FileStoreDir, "checkpoint-path", "", "directory for filesystem checkpoint storage (CHECKPOINT_PATH)")
	cmd.Flags().IntVar(&o.Nprocs, "nprocs", 4, "worker count for --mode threaded")
	cmd.Flags().StringVar(&o.Mode, "mode", "threaded", "synchronous or threaded")
	cmd.Flags().IntVar(&o.BlockSize, "block-size", 20480, "rows per parallel-sync work unit (BLOCK_SIZE)")
	cobrautil.RegisterZeroLogFlags(cmd.Flags(), "log")
	return cmd
}

type parallelSyncOptions struct {
	IO streams.IO

	Config   options.ConfigOptions
	Postgres options.PostgresOptions
	Search   options.SearchOptions
	Broker   options.BrokerOptions

	Nprocs    int
	Mode      string
	BlockSize int
}

func (o *parallelSyncOptions) Complete(ctx context.Context) error {
	if err := o.Config.Complete(); err != nil {
		return err
	}
	if err := o.Postgres.Complete(); err != nil {
		return err
	}
	if o.Mode != string(parallelsync.ModeSynchronous) && o.Mode != string(parallelsync.ModeThreaded) {
		return fmt.Errorf("unknown parallel-sync mode %q, want %q or %q", o.Mode, parallelsync.ModeSynchronous, parallelsync.ModeThreaded)
	}
	return o.Broker.Complete(ctx)
}

func (o *parallelSyncOptions) Run(ctx context.Context) error {
	idx, err := o.Search.Complete()
	if err != nil {
		return err
	}

	pool, err := pgxpool.ConnectConfig(ctx, o.Postgres.PoolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	group, gctx := errgroup.WithContext(ctx)
	for _, sync := range o.Config.Document {
		sync := sync
		log.Info().Str("database", sync.Database).Str("index", sync.IndexName()).Msg("reflecting catalog")
		cat, err := pgcat.Reflect(ctx, pool, tree.RequiredTables(sync))
		if err != nil {
			return err
		}
		t, err := tree.Build(sync, cat)
		if err != nil {
			return err
		}

		runner := &parallelsync.Runner{
			Sync:  sync,
			Tree:  t,
			Pool:  pool,
			Index: idx,
			Store: o.Broker.Store,
			Config: parallelsync.Config{
				Mode:      parallelsync.Mode(o.Mode),
				Nprocs:    o.Nprocs,
				BlockSize: o.BlockSize,
			},
		}
		group.Go(func() error {
			return runner.Run(gctx)
		})
	}
	return group.Wait()
}
