package indexer

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// DeleteAll emits a delete-by-query matching every document in index, for the TRUNCATE-
// on-root case spec.md §4.4 step 5 calls out separately from per-document deletes: "For
// TRUNCATE on the root, emit a delete-by-query on the index." The bulk API has no
// delete-by-query action, so this is its own request rather than an Action in a batch.
func (c *Client) DeleteAll(ctx context.Context, index string) error {
	query, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
	})

	res, err := c.es.DeleteByQuery([]string{index}, bytes.NewReader(query), c.es.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return errs.Wrap(errs.IndexerRetryable, "submit delete-by-query", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if isRetryableStatus(res.StatusCode) {
			return errs.Wrap(errs.IndexerRetryable, "delete-by-query rejected", nil)
		}
		return errs.Wrap(errs.IndexerFatal, "delete-by-query rejected", nil)
	}
	return nil
}
