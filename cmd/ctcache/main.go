// Command ctcache wraps clang-tidy invocations behind a fingerprint cache.
// On a fingerprint hit the analyzer is not run at all; on a miss it runs
// with its original arguments and a clean result is recorded in every
// configured cache tier.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gophersatwork/ctcache/internal/cache"
	"github.com/gophersatwork/ctcache/internal/compiledb"
	"github.com/gophersatwork/ctcache/internal/config"
	"github.com/gophersatwork/ctcache/internal/fingerprint"
	"github.com/gophersatwork/ctcache/internal/invocation"
	"github.com/gophersatwork/ctcache/internal/logging"
	"github.com/gophersatwork/ctcache/internal/runner"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) (code int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ctcache:", err)
		return 1
	}

	log := logging.New(cfg.Debug)
	defer log.Sync()

	// Wrapper failures must not take the build down with a stack trace —
	// unless the operator asked for one.
	if !cfg.Debug {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("internal error: %v", r)
				code = 1
			}
		}()
	}

	return run(args, cfg, log)
}

func run(args []string, cfg *config.Config, log *zap.SugaredLogger) int {
	resolver := compiledb.NewResolver(log)
	inv, err := invocation.Parse(args, resolver)
	if err != nil {
		log.Errorf("parsing arguments: %v", err)
		return 1
	}

	local := cache.NewLocal(cfg.Dir, log)
	ctx := context.Background()

	switch inv.Mode {
	case invocation.ModePrintCacheDir:
		fmt.Println(cfg.Dir)
		return 0

	case invocation.ModeClean:
		if err := local.Clean(); err != nil {
			log.Errorf("cleaning %s: %v", cfg.Dir, err)
			return 1
		}
		return 0

	case invocation.ModeZeroStats:
		if err := local.ZeroStats(); err != nil {
			log.Errorf("zeroing stats: %v", err)
			return 1
		}
		return 0

	case invocation.ModeShowStats:
		multi := cache.NewMulti(local, cache.BuildRemotes(ctx, cfg, log), log)
		stats, err := multi.QueryStats(ctx)
		if err != nil {
			log.Errorf("querying stats: %v", err)
			return 1
		}
		printStats(os.Stdout, stats)
		return 0
	}

	multi := cache.NewMulti(local, cache.BuildRemotes(ctx, cfg, log), log)
	fp, err := fingerprint.New(cfg, log)
	if err != nil {
		log.Errorf("configuring fingerprinting: %v", err)
		return 1
	}

	code, err := runner.New(cfg, multi, fp, log).Run(ctx, inv)
	if err != nil {
		log.Errorf("wrapping analyzer: %v", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}
