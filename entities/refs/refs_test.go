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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectID(t *testing.T) {
	hex := strings.Repeat("ab", ObjectIDLength)
	id, err := ParseObjectID(hex)
	require.NoError(t, err)
	assert.Equal(t, hex, id.String())
	assert.False(t, id.IsZero())
	assert.True(t, ZeroID.IsZero())

	_, err = ParseObjectID("abc")
	assert.Error(t, err)

	_, err = ParseObjectID(strings.Repeat("zz", ObjectIDLength))
	assert.Error(t, err)
}

func TestValueEqual(t *testing.T) {
	a, b := ObjectID{1}, ObjectID{2}

	assert.True(t, Object(a).Equal(Object(a)))
	assert.False(t, Object(a).Equal(Object(b)))
	assert.False(t, Object(a).Equal(PeeledTag(a, b)))
	assert.True(t, PeeledTag(a, b).Equal(PeeledTag(a, b)))
	assert.False(t, PeeledTag(a, b).Equal(PeeledTag(a, a)))
	assert.True(t, Symbolic("refs/heads/main").Equal(Symbolic("refs/heads/main")))
	assert.False(t, Symbolic("refs/heads/main").Equal(Symbolic("refs/heads/dev")))
	assert.True(t, Deleted().Equal(Value{Kind: KindDeleted, ObjectID: a}))
}

func TestUpdateMatches(t *testing.T) {
	current := &Ref{Name: "refs/heads/main", Value: Object(ObjectID{1})}
	expected := Object(ObjectID{1})
	other := Object(ObjectID{2})

	tests := []struct {
		name     string
		update   Update
		current  *Ref
		expected bool
	}{
		{name: "no expectation, absent", update: Set("x", other), current: nil, expected: true},
		{name: "no expectation, present", update: Set("x", other), current: current, expected: true},
		{name: "create, absent", update: Create("x", ObjectID{1}), current: nil, expected: true},
		{name: "create, present", update: Create("x", ObjectID{1}), current: current, expected: false},
		{name: "matching old value", update: Update{Old: &expected, New: other}, current: current, expected: true},
		{name: "other old value", update: Update{Old: &other, New: other}, current: current, expected: false},
		{name: "old value, absent", update: Update{Old: &expected, New: other}, current: nil, expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.update.Matches(test.current))
		})
	}
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name     string
		updates  []Update
		expected error
	}{
		{name: "empty", expected: ErrEmptyBatch},
		{name: "valid", updates: []Update{Delete("a"), Set("b", Symbolic("a"))}},
		{name: "duplicate", updates: []Update{Delete("a"), Delete("a")}, expected: ErrDuplicateName},
		{name: "empty name", updates: []Update{Delete("")}, expected: ErrInvalidName},
		{name: "newline", updates: []Update{Delete("a\nb")}, expected: ErrInvalidName},
		{name: "bad target", updates: []Update{Set("a", Symbolic(""))}, expected: ErrInvalidName},
		{name: "bad kind", updates: []Update{Set("a", Value{Kind: Kind(9)})}, expected: ErrInvalidValue},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateBatch(test.updates)
			if test.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, test.expected)
		})
	}
}

func TestRecords(t *testing.T) {
	out := Records([]Update{
		Set("refs/heads/b", Object(ObjectID{2})),
		Delete("refs/heads/a"),
		Set("HEAD", Symbolic("refs/heads/b")),
	}, 42)

	require.Len(t, out, 3)
	assert.Equal(t, "HEAD", out[0].Name)
	assert.Equal(t, "refs/heads/a", out[1].Name)
	assert.True(t, out[1].Value.IsDeleted())
	assert.Equal(t, "refs/heads/b", out[2].Name)
	for _, ref := range out {
		assert.Equal(t, uint64(42), ref.UpdateIndex)
	}
}

func TestKindAndValueString(t *testing.T) {
	assert.Equal(t, "deleted", KindDeleted.String())
	assert.Equal(t, "n/a", Kind(9).String())
	assert.Equal(t, "ref: refs/heads/main", Symbolic("refs/heads/main").String())
	assert.Equal(t, "deleted", Deleted().String())
	assert.True(t, Less("a", "b"))
	assert.False(t, Less("b", "b"))
	assert.True(t, Less("B", "a"), "bytewise order")
}
