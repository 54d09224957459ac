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
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// ObjectIDLength is the length of a raw object id in bytes
const ObjectIDLength = 20

// MaxSymbolicDepth is the number of symbolic hops followed before a
// reference is considered to be part of a cycle
const MaxSymbolicDepth = 5

type ObjectID [ObjectIDLength]byte

var ZeroID ObjectID

func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) IsZero() bool {
	return id == ZeroID
}

func ParseObjectID(in string) (ObjectID, error) {
	var id ObjectID
	if len(in) != 2*ObjectIDLength {
		return id, errors.Errorf("object id %q must have %d hex characters",
			in, 2*ObjectIDLength)
	}

	if _, err := hex.Decode(id[:], []byte(in)); err != nil {
		return id, errors.Wrapf(err, "decode object id %q", in)
	}

	return id, nil
}

type Kind uint8

const (
	KindDeleted Kind = iota
	KindObject
	KindPeeled
	KindSymbolic
)

func (k Kind) String() string {
	switch k {
	case KindDeleted:
		return "deleted"
	case KindObject:
		return "object"
	case KindPeeled:
		return "peeled"
	case KindSymbolic:
		return "symbolic"
	default:
		return "n/a"
	}
}

func (k Kind) Valid() bool {
	return k <= KindSymbolic
}

// Value is what a reference name points to. Only the fields matching Kind
// are meaningful.
type Value struct {
	Kind     Kind
	ObjectID ObjectID
	// Peeled is the object an annotated tag ultimately points to
	Peeled ObjectID
	Target string
}

func Deleted() Value {
	return Value{Kind: KindDeleted}
}

func Object(id ObjectID) Value {
	return Value{Kind: KindObject, ObjectID: id}
}

func PeeledTag(id, peeled ObjectID) Value {
	return Value{Kind: KindPeeled, ObjectID: id, Peeled: peeled}
}

func Symbolic(target string) Value {
	return Value{Kind: KindSymbolic, Target: target}
}

func (v Value) IsDeleted() bool {
	return v.Kind == KindDeleted
}

func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindObject:
		return v.ObjectID == other.ObjectID
	case KindPeeled:
		return v.ObjectID == other.ObjectID && v.Peeled == other.Peeled
	case KindSymbolic:
		return v.Target == other.Target
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindObject:
		return v.ObjectID.String()
	case KindPeeled:
		return fmt.Sprintf("%s^{%s}", v.ObjectID, v.Peeled)
	case KindSymbolic:
		return "ref: " + v.Target
	default:
		return v.Kind.String()
	}
}

// Ref is a single reference record. UpdateIndex is the logical version of
// the batch that last set Value.
type Ref struct {
	Name        string
	Value       Value
	UpdateIndex uint64
}

func (r *Ref) IsSymbolic() bool {
	return r.Value.Kind == KindSymbolic
}

// Less orders references by name, bytewise
func Less(a, b string) bool {
	return bytes.Compare([]byte(a), []byte(b)) < 0
}
