// Package session loads a bank from the snapshot store for one CLI command
// and writes it back afterwards.
package session

import (
	"errors"

	"github.com/solana-playground/playnet/pkg/bank"
	"github.com/solana-playground/playnet/pkg/config"
	"github.com/solana-playground/playnet/pkg/snapstore"
	"k8s.io/klog/v2"
)

var (
	DbPath     string
	Name       string
	ConfigPath string
)

type Session struct {
	Bank  *bank.Bank
	store *snapstore.Store
}

func loadConfig() (*config.Config, error) {
	if ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(ConfigPath)
}

// Open restores the named bank, or creates it at genesis when the store has
// no snapshot under that name. With fresh set the stored snapshot is ignored.
func Open(fresh bool) (*Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := snapstore.Open(DbPath)
	if err != nil {
		return nil, err
	}

	var snap []byte
	if !fresh {
		snap, err = store.Get(Name)
		if errors.Is(err, snapstore.ErrNotFound) {
			klog.Infof("no snapshot named %q, starting from genesis", Name)
		} else if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &Session{Bank: bank.New(cfg, snap), store: store}, nil
}

func (s *Session) Save() error {
	snap, err := s.Bank.Snapshot()
	if err != nil {
		return err
	}
	return s.store.Put(Name, snap)
}

func (s *Session) Close() {
	if err := s.store.Close(); err != nil {
		klog.Errorf("closing snapshot store: %s", err)
	}
}
