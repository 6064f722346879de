// Package indexer implements the bulk indexing client named in spec.md §1/§4.4: submit
// upserts and deletes produced by the Sync Engine, classify per-item failures into
// retryable vs fatal, and retry retryable batches with exponential backoff bounded by
// ELASTICSEARCH_MAX_BACKOFF.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// Op is the kind of change a single Action applies to the index.
type Op int

const (
	OpUpsert Op = iota
	OpDelete
)

// Action is one document-level change the Sync Engine emits per spec.md §4.4 step 5: an
// upsert for a changed pivot row, or a delete for a root-level DELETE.
type Action struct {
	Op       Op
	Index    string
	ID       string
	Document map[string]interface{}
}

// Client wraps the Elasticsearch Bulk API with the retry policy spec.md §4.4/§7 requires.
// Grounded on SPEC_FULL.md's domain-stack wiring section: esapi.Bulk plus
// cenkalti/backoff/v4, rather than a hand-rolled sleep loop.
type Client struct {
	es              *elasticsearch.Client
	initialBackoff  time.Duration
	maxBackoff      time.Duration
}

// New wraps an already-configured elasticsearch.Client.
func New(es *elasticsearch.Client, initialBackoff, maxBackoff time.Duration) *Client {
	return &Client{es: es, initialBackoff: initialBackoff, maxBackoff: maxBackoff}
}

// Result summarizes one Submit call's per-item outcomes.
type Result struct {
	Succeeded         int
	FatalFailures     []Failure
	retryableFailures int
}

// Failure is one item the bulk response reported as permanently unindexable.
type Failure struct {
	ID     string
	Reason string
}

// Submit sends actions as a single bulk request, retrying the whole batch with
// exponential backoff while any item (or the request itself) fails in a retryable way,
// per spec.md §4.4 step 7. Fatal per-item failures are returned in Result rather than
// retried; a fatal failure never blocks the rest of the batch from succeeding.
func (c *Client) Submit(ctx context.Context, actions []Action) (*Result, error) {
	if len(actions) == 0 {
		return &Result{}, nil
	}
	body := buildBulkBody(actions)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0 // bounded by ctx, not by a wall-clock ceiling

	var result *Result
	operation := func() error {
		res, err := c.es.Bulk(bytes.NewReader(body), c.es.Bulk.WithContext(ctx))
		if err != nil {
			return errs.Wrap(errs.IndexerRetryable, "submit bulk request", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			if isRetryableStatus(res.StatusCode) {
				return errs.Wrap(errs.IndexerRetryable, "bulk request rejected", nil)
			}
			return backoff.Permanent(errs.Wrap(errs.IndexerFatal, "bulk request rejected", nil))
		}

		parsed, err := classify(res.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		result = parsed
		if parsed.retryableFailures > 0 {
			return errs.Wrap(errs.IndexerRetryable, "retryable item failures in bulk response", nil)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if result != nil {
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items"`
}

type bulkResponseItem struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  *bulkItemError  `json:"error,omitempty"`
}

type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func classify(body io.Reader) (*Result, error) {
	var parsed bulkResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.IndexerFatal, "decode bulk response", err)
	}

	result := &Result{}
	for _, item := range parsed.Items {
		for _, entry := range item {
			if entry.Error == nil {
				result.Succeeded++
				continue
			}
			if isRetryableStatus(entry.Status) {
				result.retryableFailures++
				continue
			}
			result.FatalFailures = append(result.FatalFailures, Failure{ID: entry.ID, Reason: entry.Error.Reason})
		}
	}
	return result, nil
}

func buildBulkBody(actions []Action) []byte {
	var buf bytes.Buffer
	for _, a := range actions {
		switch a.Op {
		case OpUpsert:
			meta, _ := json.Marshal(map[string]interface{}{
				"index": map[string]string{"_index": a.Index, "_id": a.ID},
			})
			buf.Write(meta)
			buf.WriteByte('\n')
			doc, _ := json.Marshal(a.Document)
			buf.Write(doc)
			buf.WriteByte('\n')
		case OpDelete:
			meta, _ := json.Marshal(map[string]interface{}{
				"delete": map[string]string{"_index": a.Index, "_id": a.ID},
			})
			buf.Write(meta)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
