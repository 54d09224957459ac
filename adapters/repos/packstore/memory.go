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
	"sync"

	"github.com/pkg/errors"
)

// Memory keeps all packs in memory. It behaves like the durable store,
// including the atomicity of commits, and is the store of choice for tests
// and short-lived repositories.
type Memory struct {
	sync.RWMutex

	opts    options
	packs   []*Description
	files   map[string]map[Ext][]byte
	staging *staging
	closed  bool
}

var _ Store = (*Memory)(nil)

func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:    makeOptions(opts),
		files:   map[string]map[Ext][]byte{},
		staging: newStaging(),
	}
}

func (m *Memory) NewPack(ctx context.Context, source Source) (*Description, error) {
	if err := m.checkOpen(ctx); err != nil {
		return nil, err
	}

	return newDescription(source, m.opts.now()), nil
}

func (m *Memory) WriteFile(ctx context.Context, desc *Description, ext Ext) (Output, error) {
	if err := m.checkOpen(ctx); err != nil {
		return nil, err
	}

	name := desc.Name
	return &bufferedOutput{
		blockSize: m.opts.blockSize,
		onClose: func(data []byte) {
			m.staging.put(name, ext, data)
		},
	}, nil
}

func (m *Memory) ReadFile(ctx context.Context, desc *Description, ext Ext) ([]byte, error) {
	if err := m.checkOpen(ctx); err != nil {
		return nil, err
	}

	m.RLock()
	defer m.RUnlock()

	data, ok := m.files[desc.Name][ext]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", desc.FileName(ext))
	}

	return data, nil
}

func (m *Memory) Commit(ctx context.Context, added, prune []*Description) error {
	if err := m.checkOpen(ctx); err != nil {
		return err
	}

	added = cloneAll(added)
	staged := make([]map[Ext][]byte, len(added))
	for i, d := range added {
		files, err := m.staging.take(d)
		if err != nil {
			return err
		}
		staged[i] = files
	}

	m.Lock()
	defer m.Unlock()

	next, err := validateCommit(m.packs, added, prune)
	if err != nil {
		return err
	}

	for _, d := range prune {
		delete(m.files, d.Name)
	}

	for i, d := range added {
		m.files[d.Name] = staged[i]
		m.staging.drop(d.Name)
	}

	m.packs = next
	return nil
}

func (m *Memory) Abandon(ctx context.Context, desc *Description) error {
	m.staging.drop(desc.Name)
	return nil
}

func (m *Memory) ListPacks(ctx context.Context) ([]*Description, error) {
	if err := m.checkOpen(ctx); err != nil {
		return nil, err
	}

	m.RLock()
	defer m.RUnlock()

	out := make([]*Description, len(m.packs))
	copy(out, m.packs)
	return out, nil
}

func (m *Memory) Close() error {
	m.Lock()
	defer m.Unlock()

	m.closed = true
	m.packs = nil
	m.files = nil
	return nil
}

func (m *Memory) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.RLock()
	defer m.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}
