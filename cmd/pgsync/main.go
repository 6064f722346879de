package main

import (
	"os"

	"github.com/jzelinskie/cobrautil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/signals"
	"github.com/pgsync-io/pgsync/internal/streams"
)

func main() {
	s := streams.NewStdIO()
	ctx := signals.Context()
	rootCmd := &cobra.Command{
		Use:               "pgsync",
		Short:             "keep an Elasticsearch/OpenSearch index in sync with PostgreSQL",
		PersistentPreRunE: cobrautil.SyncViperPreRunE("pgsync"),
	}

	rootCmd.AddCommand(newBootstrapCmd(ctx, s))
	rootCmd.AddCommand(newSyncCmd(ctx, s))
	rootCmd.AddCommand(newParallelSyncCmd(ctx, s))

	// Exit codes follow spec.md §6/§7 rather than cobra's default (always 1 on error),
	// so bootstrap/sync/parallel-sync failures are distinguishable by an operator's
	// process supervisor.
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("pgsync failed")
		os.Exit(errs.ExitCode(err))
	}
}
