// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"sync"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

// Key is the environment variable that selects the runtime environment.
const Key = "ENV"

var (
	Env string

	once sync.Once
)

func IsLocal() bool {
	return Env == Local
}

func IsProduction() bool {
	return Env == Production
}

func IsTesting() bool {
	return Env == Testing
}

func init() {
	once.Do(func() {
		// viper's global instance has not bound env yet at init time.
		_ = viper.BindEnv(Key)
		Env = viper.GetString(Key)
		if Env == "" {
			Env = Local
		}
	})
}
