// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"

	"github.com/foliosim/foliosim/cmd"
	"github.com/spf13/viper"
)

func configureViper() {
	viper.SetConfigName("foliosim")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/etc/foliosim/")
	viper.AddConfigPath("$HOME/.config/foliosim")
	viper.AddConfigPath(".")

	// config file is optional; flags and env vars cover everything
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(err)
		}
	}
}

func main() {
	configureViper()
	cmd.Execute()
}
