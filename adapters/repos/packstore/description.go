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
	"fmt"
	"strings"
	"time"

	"github.com/weaviate/refstore/adapters/repos/reftable"
)

// Source records why a pack was created
type Source uint8

const (
	SourceInsert Source = iota
	SourceReceive
	SourceCompact
	SourceGC
	SourceGCRest
	SourceUnreachable
)

func (s Source) String() string {
	switch s {
	case SourceInsert:
		return "INSERT"
	case SourceReceive:
		return "RECEIVE"
	case SourceCompact:
		return "COMPACT"
	case SourceGC:
		return "GC"
	case SourceGCRest:
		return "GC_REST"
	case SourceUnreachable:
		return "UNREACHABLE_GARBAGE"
	default:
		return "n/a"
	}
}

// Ext is a single file extension a pack may be stored under. A pack keeps
// the set of its extensions as a bit set.
type Ext uint8

const (
	ExtPack Ext = 1 << iota
	ExtIndex
	ExtBitmap
	ExtReftable
)

var AllExts = []Ext{ExtPack, ExtIndex, ExtBitmap, ExtReftable}

func (e Ext) Extension() string {
	switch e {
	case ExtPack:
		return "pack"
	case ExtIndex:
		return "idx"
	case ExtBitmap:
		return "bitmap"
	case ExtReftable:
		return "ref"
	default:
		return fmt.Sprintf("ext%d", uint8(e))
	}
}

// Description is the metadata of a pack. Once committed it is never
// changed again, callers that need to modify it work on a Clone.
type Description struct {
	Name      string           `msgpack:"name"`
	Source    Source           `msgpack:"source"`
	Exts      Ext              `msgpack:"exts"`
	FileSizes map[string]int64 `msgpack:"file_sizes"`
	CreatedAt time.Time        `msgpack:"created_at"`

	MinUpdateIndex uint64          `msgpack:"min_update_index"`
	MaxUpdateIndex uint64          `msgpack:"max_update_index"`
	ReftableStats  *reftable.Stats `msgpack:"reftable_stats,omitempty"`
}

func (d *Description) FileName(ext Ext) string {
	return d.Name + "." + ext.Extension()
}

func (d *Description) AddFileExt(ext Ext) {
	d.Exts |= ext
}

func (d *Description) HasFileExt(ext Ext) bool {
	return d.Exts&ext != 0
}

// OnlyContains reports whether ext is the one and only extension of the
// pack
func (d *Description) OnlyContains(ext Ext) bool {
	return d.Exts == ext
}

func (d *Description) SetFileSize(ext Ext, size int64) {
	if d.FileSizes == nil {
		d.FileSizes = map[string]int64{}
	}
	d.FileSizes[ext.Extension()] = size
}

func (d *Description) FileSize(ext Ext) int64 {
	return d.FileSizes[ext.Extension()]
}

func (d *Description) SetReftableStats(stats reftable.Stats) {
	d.ReftableStats = &stats
	d.MinUpdateIndex = stats.MinUpdateIndex
	d.MaxUpdateIndex = stats.MaxUpdateIndex
	d.SetFileSize(ExtReftable, stats.Size)
}

func (d *Description) Clone() *Description {
	out := *d
	if d.FileSizes != nil {
		out.FileSizes = make(map[string]int64, len(d.FileSizes))
		for k, v := range d.FileSizes {
			out.FileSizes[k] = v
		}
	}
	if d.ReftableStats != nil {
		stats := *d.ReftableStats
		out.ReftableStats = &stats
	}
	return &out
}

func (d *Description) String() string {
	exts := make([]string, 0, len(AllExts))
	for _, ext := range AllExts {
		if d.HasFileExt(ext) {
			exts = append(exts, ext.Extension())
		}
	}

	return fmt.Sprintf("%s[%s](%s)", d.Name, d.Source, strings.Join(exts, ","))
}

func names(descs []*Description) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func cloneAll(descs []*Description) []*Description {
	out := make([]*Description, len(descs))
	for i, d := range descs {
		out[i] = d.Clone()
	}
	return out
}
