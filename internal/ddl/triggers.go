package ddl

import "fmt"

// TriggerFunction is the name of the shared PL/pgSQL function every table trigger calls.
const TriggerFunction = "table_notify"

// ViewName is the helper view the trigger function consults to know which primary and
// foreign key columns belong on the notification payload for TG_TABLE_NAME — avoiding a
// catalog lookup on every row change.
const ViewName = "_view"

// createNotifyFunction is (re)created once per database on setup; CREATE OR REPLACE makes
// it idempotent across repeated bootstraps. Grounded on
// original_source/pgsync/trigger.py's CREATE_TRIGGER_TEMPLATE.
const createNotifyFunction = `
CREATE OR REPLACE FUNCTION %[1]s() RETURNS TRIGGER AS $$
DECLARE
  channel TEXT;
  old_row JSON;
  new_row JSON;
  notification JSON;
  xmin BIGINT;
  _indices TEXT[];
  _primary_keys TEXT[];
  _foreign_keys TEXT[];
BEGIN
    channel := CURRENT_DATABASE();

    IF TG_OP = 'DELETE' THEN
        SELECT primary_keys, indices
        INTO _primary_keys, _indices
        FROM %[2]s
        WHERE table_name = TG_TABLE_NAME;

        old_row = ROW_TO_JSON(OLD);
        old_row := (
            SELECT JSONB_OBJECT_AGG(key, value)
            FROM JSON_EACH(old_row)
            WHERE key = ANY(_primary_keys)
        );
        xmin := OLD.xmin;
    ELSE
        IF TG_OP <> 'TRUNCATE' THEN
            SELECT primary_keys, foreign_keys, indices
            INTO _primary_keys, _foreign_keys, _indices
            FROM %[2]s
            WHERE table_name = TG_TABLE_NAME;

            new_row = ROW_TO_JSON(NEW);
            new_row := (
                SELECT JSONB_OBJECT_AGG(key, value)
                FROM JSON_EACH(new_row)
                WHERE key = ANY(_primary_keys || _foreign_keys)
            );
            IF TG_OP = 'UPDATE' THEN
                old_row = ROW_TO_JSON(OLD);
                old_row := (
                    SELECT JSONB_OBJECT_AGG(key, value)
                    FROM JSON_EACH(old_row)
                    WHERE key = ANY(_primary_keys || _foreign_keys)
                );
            END IF;
            xmin := NEW.xmin;
        ELSE
            xmin := TXID_CURRENT();
        END IF;
    END IF;

    notification = JSON_BUILD_OBJECT(
        'xmin', xmin,
        'new', new_row,
        'old', old_row,
        'indices', _indices,
        'tg_op', TG_OP,
        'table', TG_TABLE_NAME,
        'schema', TG_TABLE_SCHEMA
    );

    PERFORM PG_NOTIFY(channel, notification::TEXT);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

// createTableTrigger installs the row-level trigger (INSERT/UPDATE/DELETE) for one table.
// CREATE OR REPLACE on the function plus DROP TRIGGER IF EXISTS before CREATE makes the
// whole install idempotent across repeated `pgsync bootstrap` runs.
const createTableTrigger = `
DROP TRIGGER IF EXISTS %[1]s ON %[2]s.%[3]s;
CREATE TRIGGER %[1]s
  AFTER INSERT OR UPDATE OR DELETE ON %[2]s.%[3]s
  FOR EACH ROW EXECUTE PROCEDURE %[4]s();
`

const dropTableTrigger = `DROP TRIGGER IF EXISTS %[1]s ON %[2]s.%[3]s;`

// createTruncateTrigger installs the statement-level TRUNCATE trigger. Postgres requires
// TRUNCATE triggers to be FOR EACH STATEMENT — they cannot share a FOR EACH ROW trigger
// with INSERT/UPDATE/DELETE, so this is a second trigger on the same table and function.
const createTruncateTrigger = `
DROP TRIGGER IF EXISTS %[1]s ON %[2]s.%[3]s;
CREATE TRIGGER %[1]s
  AFTER TRUNCATE ON %[2]s.%[3]s
  FOR EACH STATEMENT EXECUTE PROCEDURE %[4]s();
`

const dropTruncateTrigger = `DROP TRIGGER IF EXISTS %[1]s ON %[2]s.%[3]s;`

func triggerName(schema, table string) string {
	return fmt.Sprintf("%s_%s_notify", schema, table)
}

func truncateTriggerName(schema, table string) string {
	return fmt.Sprintf("%s_%s_truncate", schema, table)
}

// CreateNotifyFunctionSQL renders the shared trigger function body.
func CreateNotifyFunctionSQL() string {
	return fmt.Sprintf(createNotifyFunction, TriggerFunction, quoteQualified(ViewSchema, ViewName))
}

// CreateTableTriggerSQL renders the per-table trigger install statements: the row-level
// trigger for INSERT/UPDATE/DELETE and the statement-level trigger for TRUNCATE.
func CreateTableTriggerSQL(schema, table string) string {
	row := fmt.Sprintf(createTableTrigger, triggerName(schema, table), quoteIdent(schema), quoteIdent(table), TriggerFunction)
	stmt := fmt.Sprintf(createTruncateTrigger, truncateTriggerName(schema, table), quoteIdent(schema), quoteIdent(table), TriggerFunction)
	return row + stmt
}

// DropTableTriggerSQL renders the per-table trigger removal statements.
func DropTableTriggerSQL(schema, table string) string {
	row := fmt.Sprintf(dropTableTrigger, triggerName(schema, table), quoteIdent(schema), quoteIdent(table))
	stmt := fmt.Sprintf(dropTruncateTrigger, truncateTriggerName(schema, table), quoteIdent(schema), quoteIdent(table))
	return row + stmt
}
