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

package errors

import (
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	entcfg "github.com/weaviate/refstore/entities/config"
)

// GoWrapper runs f in a new goroutine. A panic in f is logged instead of
// crashing the process unless DISABLE_RECOVERY_ON_PANIC is set.
func GoWrapper(f func(), logger logrus.FieldLogger) {
	go func() {
		defer func() {
			if !recoveryDisabled() {
				if r := recover(); r != nil {
					logger.WithField("action", "goroutine_panic").
						WithField("stack", string(debug.Stack())).
						Errorf("Recovered from panic: %v", r)
				}
			}
		}()
		f()
	}()
}

func recoveryDisabled() bool {
	return entcfg.Enabled(os.Getenv("DISABLE_RECOVERY_ON_PANIC"))
}
