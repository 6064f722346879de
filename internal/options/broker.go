package options

import (
	"context"

	"github.com/spf13/afero"

	"github.com/pgsync-io/pgsync/internal/broker"
)

// BrokerOptions selects and configures the checkpoint store. Exactly one of RedisAddr or
// FileStoreDir should be set; RedisAddr wins if both are.
type BrokerOptions struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FileStoreDir string

	Store broker.Store
}

// Complete constructs the configured broker.Store, unless one was already supplied.
func (o *BrokerOptions) Complete(ctx context.Context) error {
	if o.Store != nil {
		return nil
	}

	if o.RedisAddr != "" {
		store, err := broker.NewRedisStore(ctx, o.RedisAddr, o.RedisPassword, o.RedisDB)
		if err != nil {
			return err
		}
		o.Store = store
		return nil
	}

	dir := o.FileStoreDir
	if dir == "" {
		dir = ".pgsync"
	}
	store, err := broker.NewFileStore(afero.NewOsFs(), dir)
	if err != nil {
		return err
	}
	o.Store = store
	return nil
}
