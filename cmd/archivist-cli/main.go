// Copyright 2025 Oppie Thunder Contributors
//
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

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/oppie-labs/archivist/cmd/archivist-cli/internal/cli"
	"github.com/oppie-labs/archivist/pkg/archivist/engine"
	"github.com/oppie-labs/archivist/pkg/archivist/types"
)

// Version metadata. Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "backup":
		handleBackup()
	case "restore":
		handleRestore()
	case "list":
		handleList()
	case "prune":
		handlePrune()
	case "verify":
		handleVerify()
	case "stats":
		handleStats()
	case "version", "--version", "-v":
		handleVersion()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`archivist
Commands:
  backup   --source <dir> [--full]
  restore  --out <dir> [--datetime <id>] [--allow-incomplete] [--overwrite] [--include <glob>] [--exclude <glob>]
  list
  prune    --keep <n> [--dry-run]
  verify   --source <dir> [--datetime <id>] [--full]
  stats
  version  [-v|--version]`)
}

// --- CLI configuration ---

func newConfig() cli.Config {
	return cli.Config{
		EngineFactory: cli.DefaultEngineFactory,
	}
}

// --- commands ---

func handleBackup() {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	source := fs.String("source", ".", "source directory")
	full := fs.Bool("full", false, "force a full backup (default: incremental)")
	_ = fs.Parse(os.Args[2:])

	kind := types.Incremental
	if *full {
		kind = types.Full
	}

	cfg := newConfig()
	if err := cli.HandleBackup(os.Stdout, cfg, kind, *source); err != nil {
		die(err)
	}
}

func handleRestore() {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	out := fs.String("out", "", "restore target directory")
	datetime := fs.String("datetime", "", "snapshot datetime (default: latest)")
	allowIncomplete := fs.Bool("allow-incomplete", false, "permit restoring an incomplete snapshot")
	overwrite := fs.Bool("overwrite", false, "permit restoring into a non-empty directory")
	include := fs.String("include", "", "comma-separated include globs")
	exclude := fs.String("exclude", "", "comma-separated exclude globs")
	_ = fs.Parse(os.Args[2:])

	if *out == "" {
		die(fmt.Errorf("--out is required"))
	}

	opts := engine.RestoreOpts{
		Datetime:        *datetime,
		AllowIncomplete: *allowIncomplete,
		Overwrite:       *overwrite,
		Include:         splitGlobs(*include),
		Exclude:         splitGlobs(*exclude),
	}

	cfg := newConfig()
	if err := cli.HandleRestore(os.Stdout, cfg, *out, opts); err != nil {
		die(err)
	}
}

func handleList() {
	cfg := newConfig()
	if err := cli.HandleList(os.Stdout, cfg); err != nil {
		die(err)
	}
}

func handlePrune() {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	keep := fs.Int("keep", 1, "number of most recent backup groups to keep")
	dryRun := fs.Bool("dry-run", false, "report what would be pruned without mutating the store")
	_ = fs.Parse(os.Args[2:])

	cfg := newConfig()
	if err := cli.HandlePrune(os.Stdout, cfg, *keep, *dryRun); err != nil {
		die(err)
	}
}

func handleVerify() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	source := fs.String("source", ".", "source directory to rehash and compare")
	datetime := fs.String("datetime", "", "snapshot datetime to compare against (default: latest)")
	full := fs.Bool("full", false, "restore to a scratch directory and byte-compare instead of rehashing in place")
	_ = fs.Parse(os.Args[2:])

	cfg := newConfig()
	if err := cli.HandleVerify(os.Stdout, cfg, *source, *datetime, *full); err != nil {
		die(err)
	}
}

func handleStats() {
	cfg := newConfig()
	if err := cli.HandleStats(os.Stdout, cfg); err != nil {
		die(err)
	}
}

// handleVersion prints CLI version information.
func handleVersion() {
	fmt.Printf("archivist %s (commit %s, built %s)\n", version, commit, date)
}

func splitGlobs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func die(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
