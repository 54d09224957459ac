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

package refs

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyBatch    = errors.New("batch contains no updates")
	ErrDuplicateName = errors.New("duplicate reference name in batch")
	ErrInvalidName   = errors.New("invalid reference name")
	ErrInvalidValue  = errors.New("invalid reference value")
)

// Update is a requested change of a single reference. A nil Old accepts any
// current state, an Old of kind KindDeleted requires the reference to be
// absent. A New of kind KindDeleted removes the reference.
type Update struct {
	Name string
	Old  *Value
	New  Value
}

func Create(name string, id ObjectID) Update {
	deleted := Deleted()
	return Update{Name: name, Old: &deleted, New: Object(id)}
}

func Set(name string, value Value) Update {
	return Update{Name: name, New: value}
}

func Delete(name string) Update {
	return Update{Name: name, New: Deleted()}
}

// Matches reports whether the expectation of u holds for current, which is
// nil if the reference does not exist.
func (u Update) Matches(current *Ref) bool {
	if u.Old == nil {
		return true
	}

	if current == nil {
		return u.Old.IsDeleted()
	}

	return u.Old.Equal(current.Value)
}

func ValidateName(name string) error {
	if name == "" {
		return errors.Wrap(ErrInvalidName, "empty name")
	}

	if strings.ContainsAny(name, "\x00\n") {
		return errors.Wrapf(ErrInvalidName, "%q contains control characters", name)
	}

	return nil
}

// ValidateBatch checks a batch for misuse that must be rejected before any
// I/O takes place.
func ValidateBatch(updates []Update) error {
	if len(updates) == 0 {
		return ErrEmptyBatch
	}

	seen := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		if err := ValidateName(u.Name); err != nil {
			return err
		}

		if !u.New.Kind.Valid() {
			return errors.Wrapf(ErrInvalidValue, "kind %d for %q", u.New.Kind, u.Name)
		}

		if u.New.Kind == KindSymbolic {
			if err := ValidateName(u.New.Target); err != nil {
				return errors.Wrapf(err, "symbolic target of %q", u.Name)
			}
		}

		if _, ok := seen[u.Name]; ok {
			return errors.Wrapf(ErrDuplicateName, "%q", u.Name)
		}
		seen[u.Name] = struct{}{}
	}

	return nil
}

// Records turns a batch into reference records stamped with updateIndex,
// sorted by name.
func Records(updates []Update, updateIndex uint64) []Ref {
	out := make([]Ref, len(updates))
	for i, u := range updates {
		out[i] = Ref{Name: u.Name, Value: u.New, UpdateIndex: updateIndex}
	}

	sort.Slice(out, func(a, b int) bool {
		return Less(out[a].Name, out[b].Name)
	})

	return out
}
