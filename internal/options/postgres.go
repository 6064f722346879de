// Package options holds the Complete()-pattern option structs cmd/pgsync's subcommands
// share, each resolving a set of CLI flags into a ready-to-use client or config object.
// Grounded on the teacher's pkg/options package, which does exactly this for postgres and
// spicedb connections.
package options

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresOptions holds options related to connecting to the source database.
type PostgresOptions struct {
	PostgresURI string

	// ReplogConfig is tuned for the logical replication connection (simple query
	// protocol, since replication connections don't support the extended protocol).
	ReplogConfig *pgxpool.Config
	PoolConfig   *pgxpool.Config
}

// Complete configures postgres options from a URI if needed. Set either URI or the
// config objects, but not both.
func (o *PostgresOptions) Complete() error {
	if o.PoolConfig != nil && o.ReplogConfig != nil {
		log.Debug().Msg("postgres config already set, skipping postgres option validation")
		return nil
	}
	if o.PoolConfig == nil && o.ReplogConfig == nil {
		if o.PostgresURI == "" {
			return fmt.Errorf("must provide postgres uri or dsn")
		}

		cfg, err := pgxpool.ParseConfig(o.PostgresURI)
		if err != nil {
			return err
		}
		o.PoolConfig = cfg

		repcfg, err := pgxpool.ParseConfig(o.PostgresURI)
		if err != nil {
			return err
		}
		repcfg.ConnConfig.RuntimeParams["replication"] = "database"
		repcfg.ConnConfig.PreferSimpleProtocol = true
		o.ReplogConfig = repcfg
		return nil
	}

	log.Fatal().Str("pg uri", o.PostgresURI).Msg("postgres options incomplete: either set postgres uri, or manually configure the connections")
	return nil
}
