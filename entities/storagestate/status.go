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

package storagestate

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	StatusReady    Status = "READY"
	StatusReadOnly Status = "READONLY"
)

var (
	ErrStatusReadOnly = errors.New("reference store is read-only")
	ErrInvalidStatus  = errors.New("invalid storage status")
)

// Status of a reference store. A read-only store keeps serving lookups but
// refuses updates and compactions.
type Status string

func (s Status) String() string {
	return string(s)
}

func (s Status) AllowsWrites() bool {
	return s != StatusReadOnly
}

func ValidateStatus(in string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(in))) {
	case StatusReady:
		return StatusReady, nil
	case StatusReadOnly:
		return StatusReadOnly, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", in)
	}
}
