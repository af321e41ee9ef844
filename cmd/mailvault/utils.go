package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mailvault/internal/blobstore"
	"mailvault/internal/config"
	"mailvault/internal/store"
)

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	return store.Open(cfg.DBPath)
}

func openBlobStore(cfg *config.Config) (*blobstore.LocalCAS, error) {
	if cfg == nil || cfg.BlobRoot == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	return blobstore.NewLocalCAS(cfg.BlobRoot)
}

// withStore opens the catalog for the duration of one command.
func withStore(cfg *config.Config, fn func(st *store.Store) error) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
