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

package refdb

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
	"github.com/weaviate/refstore/entities/refs"
)

func oid(b byte) refs.ObjectID {
	var id refs.ObjectID
	for i := range id {
		id[i] = b
	}
	return id
}

func testDatabase(t *testing.T, store packstore.Store, cfg Config) *Database {
	t.Helper()

	logger, _ := test.NewNullLogger()
	db, err := New(store, cfg, logger, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Shutdown(context.Background())
	})

	return db
}

// longName pads a reference name to n bytes, so that only a few records fit
// into a block
func longName(prefix string, n int) string {
	if len(prefix) >= n {
		return prefix
	}
	return prefix + strings.Repeat("x", n-len(prefix))
}

// commitGCPack commits a pack as a garbage collection would: objects and
// references in a single pack
func commitGCPack(t *testing.T, db *Database, updateIndex uint64, records ...refs.Ref) *packstore.Description {
	t.Helper()

	ctx := context.Background()
	store := db.store

	desc, err := store.NewPack(ctx, packstore.SourceGC)
	require.NoError(t, err)

	out, err := store.WriteFile(ctx, desc, packstore.ExtPack)
	require.NoError(t, err)
	_, err = out.Write([]byte("PACK"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	out, err = store.WriteFile(ctx, desc, packstore.ExtReftable)
	require.NoError(t, err)
	for i := range records {
		records[i].UpdateIndex = updateIndex
	}
	w := reftable.NewWriter(reftable.DefaultConfig(), out).
		SetMinUpdateIndex(updateIndex).
		SetMaxUpdateIndex(updateIndex)
	require.NoError(t, w.Add(records))
	stats, err := w.Finish()
	require.NoError(t, err)
	require.NoError(t, out.Close())

	desc.AddFileExt(packstore.ExtPack)
	desc.AddFileExt(packstore.ExtReftable)
	desc.SetReftableStats(stats)
	require.NoError(t, store.Commit(ctx, []*packstore.Description{desc}, nil))
	db.ClearCache()

	return desc
}

func segmentNames(t *testing.T, db *Database) []string {
	t.Helper()

	segments, err := db.Segments(context.Background())
	require.NoError(t, err)

	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = seg.Name
	}
	return out
}

func refNames(in []refs.Ref) []string {
	out := make([]string, len(in))
	for i, ref := range in {
		out[i] = ref.Name
	}
	return out
}

var errInjected = errors.New("injected write fault")

// faultyStore fails the next failWrites writes of reftable files
type faultyStore struct {
	*packstore.Memory
	failWrites int
}

func (s *faultyStore) WriteFile(ctx context.Context, desc *packstore.Description,
	ext packstore.Ext,
) (packstore.Output, error) {
	out, err := s.Memory.WriteFile(ctx, desc, ext)
	if err != nil || ext != packstore.ExtReftable || s.failWrites == 0 {
		return out, err
	}

	s.failWrites--
	return &faultyOutput{Output: out}, nil
}

type faultyOutput struct {
	packstore.Output
}

func (o *faultyOutput) Write(p []byte) (int, error) {
	return 0, errInjected
}

// fakePeeler knows a fixed set of annotated tags
type fakePeeler map[refs.ObjectID]refs.ObjectID

func (p fakePeeler) Peel(ctx context.Context, id refs.ObjectID) (refs.ObjectID, bool, error) {
	peeled, ok := p[id]
	return peeled, ok, nil
}

func batchName(batch, ref int) string {
	return fmt.Sprintf("refs/heads/b%03d-%d", batch, ref)
}
