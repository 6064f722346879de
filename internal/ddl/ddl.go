// Package ddl installs and tears down everything spec.md §4.5 requires for change
// capture to work: the shared notify trigger function, two AFTER triggers per table (a
// row-level INSERT/UPDATE/DELETE trigger and a statement-level TRUNCATE trigger), the
// _view helper materialized view the function reads from, and the logical replication
// slot the reader half of capture consumes.
//
// Grounded on original_source/pgsync/trigger.py (the notify function body),
// original_source/pgsync/view.py (the helper view), and the teacher's pgschema package
// for "reflection first, DDL second" sequencing — nothing here is derived from the
// config file directly, only from a pgcat.Catalog already reflected against it.
package ddl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

// Setup installs the notify function, the _view helper, a trigger on every table in
// cat, and a replication slot for database. It is safe to call repeatedly — every
// statement it runs is idempotent. When noCreate is true, the replication slot and
// triggers are left untouched (a dry run that only verifies privilege and refreshes the
// view, for operators who manage triggers outside pgsync).
func Setup(ctx context.Context, pool *pgxpool.Pool, database string, cat *pgcat.Catalog, noCreate bool) error {
	ok, err := pgcat.HasSuperuserOrReplication(ctx, pool)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.InsufficientPrivilege, "connected role has neither superuser nor replication privilege")
	}

	if err := dropHelperView(ctx, pool); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, CreateViewSQL(cat)); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, "create helper view", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(createViewIndex, quoteQualified(ViewSchema, ViewName))); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, "create helper view index", err)
	}

	if noCreate {
		return nil
	}

	if _, err := pool.Exec(ctx, CreateNotifyFunctionSQL()); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, "create notify function", err)
	}

	for key := range cat.Tables {
		if _, err := pool.Exec(ctx, CreateTableTriggerSQL(key.Schema, key.Table)); err != nil {
			return errs.Wrap(errs.DatabaseConnectionLost, fmt.Sprintf("create trigger on %s", key), err)
		}
	}

	if err := CreateReplicationSlot(ctx, pool, database); err != nil {
		return err
	}

	if err := CreatePublication(ctx, pool, database, cat); err != nil {
		return err
	}

	return nil
}

// Teardown removes every trigger Setup installed, drops the notify function, the helper
// view, and the replication slot. A slot still in use is reported (errs.SlotInUse) but
// does not stop the rest of teardown from completing.
func Teardown(ctx context.Context, pool *pgxpool.Pool, database string, cat *pgcat.Catalog) error {
	if err := DropPublication(ctx, pool, database); err != nil {
		return err
	}

	var slotErr error
	if err := DropReplicationSlot(ctx, pool, database); err != nil {
		if kind, ok := errs.As(err); ok && kind == errs.SlotInUse {
			slotErr = err
		} else {
			return err
		}
	}

	for key := range cat.Tables {
		if _, err := pool.Exec(ctx, DropTableTriggerSQL(key.Schema, key.Table)); err != nil {
			return errs.Wrap(errs.DatabaseConnectionLost, fmt.Sprintf("drop trigger on %s", key), err)
		}
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf("DROP FUNCTION IF EXISTS %s() CASCADE;", TriggerFunction)); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, "drop notify function", err)
	}

	if err := dropHelperView(ctx, pool); err != nil {
		return err
	}

	return slotErr
}
