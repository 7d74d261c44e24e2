// Package history persists completed downloads in a leveldb datastore.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pyropy/partstream/core/model"
)

var ErrTransferNotFound = errors.New("transfer not found")

type Store struct {
	Transfers *dslvl.Datastore
}

func NewStore(dsPath string) (*Store, error) {
	p := fmt.Sprintf("%s/transfers", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return &Store{
		Transfers: store,
	}, nil
}

func transferKey(id uuid.UUID) ds.Key {
	return ds.NewKey(id.String())
}

func (s *Store) Add(ctx context.Context, transfer model.Transfer) error {
	b, err := json.Marshal(transfer)
	if err != nil {
		return err
	}

	return s.Transfers.Put(ctx, transferKey(transfer.ID), b)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	b, err := s.Transfers.Get(ctx, transferKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var transfer model.Transfer
	err = json.Unmarshal(b, &transfer)
	if err != nil {
		return nil, err
	}

	return &transfer, nil
}

// All returns every recorded transfer, oldest first.
func (s *Store) All(ctx context.Context) ([]*model.Transfer, error) {
	q := dsq.Query{}
	transfers := make([]*model.Transfer, 0)

	res, err := s.Transfers.Query(ctx, q)
	if err != nil {
		return transfers, err
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return transfers, r.Error
		}

		var transfer model.Transfer
		err = json.Unmarshal(r.Value, &transfer)
		if err != nil {
			return transfers, err
		}
		transfers = append(transfers, &transfer)
	}

	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].StartedAt.Before(transfers[j].StartedAt)
	})

	return transfers, nil
}

func (s *Store) Close() error {
	return s.Transfers.Close()
}
