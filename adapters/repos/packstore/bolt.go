//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package packstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

var (
	// commit sequence -> msgpack encoded description, iteration order is
	// commit order
	packsBucket = []byte("packs")
	// pack name -> commit sequence
	namesBucket = []byte("names")
	// file name -> contents
	filesBucket = []byte("files")
)

// Bolt is a durable pack store on top of a single bbolt file. Every commit
// is one bbolt transaction, so added packs appear and pruned packs vanish
// together or not at all, even across crashes.
type Bolt struct {
	opts    options
	path    string
	logger  logrus.FieldLogger
	staging *staging

	closeLock sync.RWMutex
	db        *bolt.DB
}

var _ Store = (*Bolt)(nil)

func OpenBolt(path string, logger logrus.FieldLogger, opts ...Option) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, fmt.Errorf("create directory of %q: %w", path, err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{packsBucket, namesBucket, filesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %q", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{
		opts:    makeOptions(opts),
		path:    path,
		logger:  logger,
		staging: newStaging(),
		db:      db,
	}, nil
}

func (b *Bolt) NewPack(ctx context.Context, source Source) (*Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return newDescription(source, b.opts.now()), nil
}

func (b *Bolt) WriteFile(ctx context.Context, desc *Description, ext Ext) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := desc.Name
	return &bufferedOutput{
		blockSize: b.opts.blockSize,
		onClose: func(data []byte) {
			b.staging.put(name, ext, data)
		},
	}, nil
}

func (b *Bolt) ReadFile(ctx context.Context, desc *Description, ext Ext) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := b.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(filesBucket).Get([]byte(desc.FileName(ext)))
		if data == nil {
			return errors.Wrapf(ErrNotFound, "%s", desc.FileName(ext))
		}

		// bbolt memory is only valid during the transaction
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})

	return out, err
}

func (b *Bolt) Commit(ctx context.Context, added, prune []*Description) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	added = cloneAll(added)
	staged := make([]map[Ext][]byte, len(added))
	for i, d := range added {
		files, err := b.staging.take(d)
		if err != nil {
			return err
		}
		staged[i] = files
	}

	err := b.update(func(tx *bolt.Tx) error {
		live, err := listPacks(tx)
		if err != nil {
			return err
		}

		if _, err := validateCommit(live, added, prune); err != nil {
			return err
		}

		for _, d := range prune {
			if err := deletePack(tx, d); err != nil {
				return errors.Wrapf(err, "prune %s", d.Name)
			}
		}

		for i, d := range added {
			if err := putPack(tx, d, staged[i]); err != nil {
				return errors.Wrapf(err, "add %s", d.Name)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range added {
		b.staging.drop(d.Name)
	}

	b.logger.WithField("action", "packstore_commit").
		WithField("path", b.path).
		WithField("added", names(added)).
		WithField("pruned", names(prune)).
		Debug("committed packs")

	return nil
}

func (b *Bolt) Abandon(ctx context.Context, desc *Description) error {
	b.staging.drop(desc.Name)
	return nil
}

func (b *Bolt) ListPacks(ctx context.Context) ([]*Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*Description
	err := b.view(func(tx *bolt.Tx) error {
		var err error
		out, err = listPacks(tx)
		return err
	})

	return out, err
}

func (b *Bolt) Close() error {
	b.closeLock.Lock()
	defer b.closeLock.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Bolt) view(fn func(tx *bolt.Tx) error) error {
	b.closeLock.RLock()
	defer b.closeLock.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	return b.db.View(fn)
}

func (b *Bolt) update(fn func(tx *bolt.Tx) error) error {
	b.closeLock.RLock()
	defer b.closeLock.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	return b.db.Update(fn)
}

func listPacks(tx *bolt.Tx) ([]*Description, error) {
	var out []*Description
	err := tx.Bucket(packsBucket).ForEach(func(k, v []byte) error {
		var d Description
		if err := msgpack.Unmarshal(v, &d); err != nil {
			return errors.Wrapf(err, "decode pack description at sequence %d",
				binary.BigEndian.Uint64(k))
		}
		out = append(out, &d)
		return nil
	})

	return out, err
}

func putPack(tx *bolt.Tx, d *Description, files map[Ext][]byte) error {
	packs := tx.Bucket(packsBucket)
	seq, err := packs.NextSequence()
	if err != nil {
		return errors.Wrap(err, "next commit sequence")
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	for ext, data := range files {
		if !d.HasFileExt(ext) {
			continue
		}
		if err := tx.Bucket(filesBucket).Put([]byte(d.FileName(ext)), data); err != nil {
			return errors.Wrapf(err, "store %s", d.FileName(ext))
		}
	}

	encoded, err := msgpack.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode description")
	}

	if err := packs.Put(key, encoded); err != nil {
		return err
	}

	return tx.Bucket(namesBucket).Put([]byte(d.Name), key)
}

func deletePack(tx *bolt.Tx, d *Description) error {
	index := tx.Bucket(namesBucket)
	key := index.Get([]byte(d.Name))
	if key == nil {
		return errors.Wrapf(ErrConflict, "pack %s is not live", d.Name)
	}

	// key points into the page, copy before mutating the bucket
	key = append([]byte(nil), key...)

	if err := tx.Bucket(packsBucket).Delete(key); err != nil {
		return err
	}

	if err := index.Delete([]byte(d.Name)); err != nil {
		return err
	}

	files := tx.Bucket(filesBucket)
	for _, ext := range AllExts {
		if err := files.Delete([]byte(d.FileName(ext))); err != nil {
			return err
		}
	}

	return nil
}
