package main

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jzelinskie/cobrautil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pgsync-io/pgsync/internal/capture"
	"github.com/pgsync-io/pgsync/internal/ddl"
	"github.com/pgsync-io/pgsync/internal/engine"
	"github.com/pgsync-io/pgsync/internal/metrics"
	"github.com/pgsync-io/pgsync/internal/options"
	"github.com/pgsync-io/pgsync/internal/pgcat"
	"github.com/pgsync-io/pgsync/internal/streams"
	"github.com/pgsync-io/pgsync/internal/synth"
	"github.com/pgsync-io/pgsync/internal/tree"
	"github.com/pgsync-io/pgsync/internal/util"
)

// engineStatusSource adapts a slice of running engines to metrics.StatusSource for the
// /stat page.
type engineStatusSource []*engine.Engine

func (s engineStatusSource) Statuses() []string {
	lines := make([]string, len(s))
	for i, e := range s {
		lines[i] = e.Status()
	}
	return lines
}

// newSyncCmd runs every Sync named in the config file: an initial full backfill, then
// (with --daemon) the Sync Engine's live main loop, until ctx is cancelled.
func newSyncCmd(ctx context.Context, s streams.IO) *cobra.Command {
	o := &syncOptions{IO: s}
	cmd := &cobra.Command{
		Use:     "sync",
		Short:   "backfill and optionally follow changes into the search index",
		Example: "  pgsync sync --config schema.json --daemon",
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
	cmd.Flags().StringVar(&o.Search.Username, "search-username", "", "elasticsearch/opensearch username")
	cmd.Flags().StringVar(&o.Search.Password, "search-password", "", "elasticsearch/opensearch password")
	cmd.Flags().StringVar(&o.Broker.RedisAddr, "redis-addr", "", "redis address for checkpoint storage (REDIS_CHECKPOINT)")
	cmd.Flags().StringVar(&o.Broker.FileStoreDir, "checkpoint-path", "", "directory for filesystem checkpoint storage (CHECKPOINT_PATH)")
	cmd.Flags().BoolVar(&o.Daemon, "daemon", false, "keep following changes after the initial backfill instead of exiting")
	cmd.Flags().IntVar(&o.ChunkSize, "chunk-size", 10000, "maximum change events the engine drains from the queue per iteration (--daemon only); the full backfill's cursor fetch size is not set by this flag")
	cmd.Flags().StringVar(&o.MetricsAddr, "metrics-addr", ":9090", "address that will serve prometheus data")
	cobrautil.RegisterZeroLogFlags(cmd.Flags(), "log")
	return cmd
}

type syncOptions struct {
	IO streams.IO

	Config   options.ConfigOptions
	Postgres options.PostgresOptions
	Search   options.SearchOptions
	Broker   options.BrokerOptions

	Daemon      bool
	ChunkSize   int
	MetricsAddr string
}

func (o *syncOptions) Complete(ctx context.Context) error {
	if err := o.Config.Complete(); err != nil {
		return err
	}
	if err := o.Postgres.Complete(); err != nil {
		return err
	}
	if err := o.Broker.Complete(ctx); err != nil {
		return err
	}
	return nil
}

func (o *syncOptions) Run(ctx context.Context) error {
	idx, err := o.Search.Complete()
	if err != nil {
		return err
	}

	pool, err := pgxpool.ConnectConfig(ctx, o.Postgres.PoolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	engines := make([]*engine.Engine, 0, len(o.Config.Document))
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

		log.Info().Str("database", sync.Database).Msg("starting full backfill")
		actions, err := engine.SynthesizeDocuments(ctx, pool, t, sync.IndexName(), synth.Filter{})
		if err != nil {
			return err
		}
		if len(actions) > 0 {
			if _, err := idx.Submit(ctx, actions); err != nil {
				return err
			}
		}

		if !o.Daemon {
			continue
		}

		listenConn, err := pgx.ConnectConfig(ctx, o.Postgres.PoolConfig.ConnConfig)
		if err != nil {
			return err
		}
		replConn, err := pgx.ConnectConfig(ctx, o.Postgres.ReplogConfig.ConnConfig)
		if err != nil {
			return err
		}
		startpos, err := ddl.SlotStartLSN(ctx, pool, sync.Database)
		if err != nil {
			return err
		}

		capt := capture.New(ctx, listenConn.PgConn(), replConn.PgConn(), sync.Database)

		eng, err := engine.New(ctx, sync, t, capt.Queue, pool, idx, o.Broker.Store, o.ChunkSize)
		if err != nil {
			return err
		}

		capt.Run(ctx, startpos)
		engines = append(engines, eng)
		group.Go(func() error {
			return eng.Run(gctx)
		})
	}

	if !o.Daemon {
		return nil
	}

	if o.MetricsAddr != "" {
		srv := &metrics.Server{Addr: o.MetricsAddr, Source: engineStatusSource(engines)}
		group.Go(func() error {
			return srv.Run(gctx)
		})
	}

	return group.Wait()
}
