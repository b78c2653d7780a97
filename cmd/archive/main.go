// Package main archives files from the command line.
//
// Usage:
//
//	go run ./cmd/archive -tags "cat outdoor" -source https://example.com photo.jpg other.png
//
// Each argument prints "<hash> created" or "<hash> existing". The exit
// status is 1 when any file failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/di"
	"github.com/buruapp/buru-server/internal/normalize"
	"github.com/buruapp/buru-server/internal/service"
)

var (
	tags    = flag.String("tags", "", "Whitespace or comma separated tags applied to every file")
	source  = flag.String("source", "", "Source URL recorded for every file")
	envFile = flag.String("env-file", ".env", "Path to .env file")
)

func main() {
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: archive [-tags t] [-source url] [-env-file path] file...")
		os.Exit(2)
	}

	cfg, err := config.Load([]string{"-env-file", *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	injector := di.NewContainer()
	do.OverrideValue(injector, cfg)

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}

	archive := do.MustInvoke[*service.ArchiveService](injector)
	tagList := normalize.SplitTags(*tags)

	ctx := context.Background()
	failed := false
	for _, path := range flag.Args() {
		res, err := archive.ArchiveFile(ctx, path, tagList, *source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		state := "existing"
		if res.Created {
			state = "created"
		}
		fmt.Printf("%s %s\n", res.Media.Hash, state)
	}

	if err := injector.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	if failed {
		os.Exit(1)
	}
}
