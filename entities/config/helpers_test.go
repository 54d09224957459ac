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


package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled(t *testing.T) {
	for _, v := range []string{"on", "enabled", "1", "true", "TRUE", "On", "Enabled"} {
		assert.True(t, Enabled(v), v)
	}
	for _, v := range []string{"", "off", "0", "false", "yes", "FALSE"} {
		assert.False(t, Enabled(v), v)
	}
}
