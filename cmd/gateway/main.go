// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the SQLGate gateway service.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"sqlgate/platform/config"
	"sqlgate/platform/gateway/server"
)

func main() {
	configPath := flag.String("config", "sqlgate.yaml", "path to the configuration file")
	exampleConfig := flag.Bool("example-config", false, "print an example configuration and exit")
	flag.Parse()

	if *exampleConfig {
		fmt.Print(config.Example())
		os.Exit(0)
	}

	if err := server.Run(*configPath); err != nil {
		log.Fatalf("[SERVER] %v", err)
	}
}
