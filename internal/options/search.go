package options

import (
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"

	"github.com/pgsync-io/pgsync/internal/indexer"
)

// SearchOptions holds options related to connecting to the Elasticsearch/OpenSearch
// cluster the Sync Engine indexes into.
type SearchOptions struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Client *elasticsearch.Client
}

// Complete builds the Elasticsearch client from the given addresses/credentials, unless
// one was already supplied (e.g. by a test).
func (o *SearchOptions) Complete() (*indexer.Client, error) {
	if o.Client == nil {
		if len(o.Addresses) == 0 {
			return nil, fmt.Errorf("must provide at least one elasticsearch/opensearch address")
		}
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: o.Addresses,
			Username:  o.Username,
			Password:  o.Password,
			APIKey:    o.APIKey,
		})
		if err != nil {
			return nil, err
		}
		o.Client = client
	} else {
		log.Debug().Msg("elasticsearch client already configured, skipping search option validation")
	}

	if o.InitialBackoff == 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return indexer.New(o.Client, o.InitialBackoff, o.MaxBackoff), nil
}
