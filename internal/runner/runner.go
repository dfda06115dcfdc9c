// Package runner decides hit or miss for one analyzer invocation, runs the
// analyzer when it must, and stores the result when it may. The governing
// rule: cache operations never mask an analyzer result. A failed cache
// degrades the wrapper to a pass-through; a failed analyzer never becomes a
// cached success.
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/gophersatwork/ctcache/internal/cache"
	"github.com/gophersatwork/ctcache/internal/config"
	"github.com/gophersatwork/ctcache/internal/fingerprint"
	"github.com/gophersatwork/ctcache/internal/invocation"
)

// ExecFunc runs an argument vector with the given output streams and
// returns its exit code. A non-nil error means the process could not run
// at all.
type ExecFunc func(args []string, stdout, stderr io.Writer) (int, error)

// Runner wraps one analyzer invocation.
type Runner struct {
	cfg    *config.Config
	cache  *cache.Multi
	fp     *fingerprint.Builder
	log    *zap.SugaredLogger
	stdout io.Writer
	stderr io.Writer
	exec   ExecFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithStreams redirects the wrapper's stdout and stderr. Useful for tests.
func WithStreams(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithExecFunc replaces the analyzer subprocess runner. Useful for tests.
func WithExecFunc(exec ExecFunc) Option {
	return func(r *Runner) {
		r.exec = exec
	}
}

// New creates a Runner.
func New(cfg *config.Config, c *cache.Multi, fp *fingerprint.Builder, log *zap.SugaredLogger, options ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		cache:  c,
		fp:     fp,
		log:    log,
		stdout: os.Stdout,
		stderr: os.Stderr,
		exec:   runProcess,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Run executes one wrapped invocation and returns the exit code to
// propagate. A non-nil error is an internal wrapper failure (exit 1).
func (r *Runner) Run(ctx context.Context, inv *invocation.Invocation) (int, error) {
	digest := r.digest(inv)

	if digest != "" {
		if r.cfg.SaveOutput {
			data, err := r.cache.GetData(ctx, digest)
			if err == nil {
				r.stdout.Write(data)
				return 0, nil
			}
			if !errors.Is(err, cache.ErrMiss) {
				return 1, err
			}
		} else {
			hit, err := r.cache.IsCached(ctx, digest)
			if err != nil {
				return 1, err
			}
			if hit {
				return 0, nil
			}
		}
	}

	// Miss, or nothing to look up: run the real analyzer with its original
	// arguments, streaming both channels through while capturing stdout.
	var captured bytes.Buffer
	code, err := r.exec(inv.Original, io.MultiWriter(r.stdout, &captured), r.stderr)
	if err != nil {
		return code, err
	}

	// Diagnostics on stdout mean the run is not a clean result: caching it
	// would replay silence for code that warns. Payload mode stores the
	// diagnostics themselves, so it is exempt, as is an explicit opt-out.
	success := code == 0 && (captured.Len() == 0 || r.cfg.IgnoreOutput || r.cfg.SaveOutput)
	if success && digest != "" {
		if r.cfg.SaveOutput {
			r.cache.StoreData(ctx, digest, captured.Bytes())
		} else {
			r.cache.Store(ctx, digest)
		}
	}
	return code, nil
}

// digest builds the fingerprint, or returns "" when fingerprinting is
// abandoned and the invocation runs uncached.
func (r *Runner) digest(inv *invocation.Invocation) string {
	d, err := r.fp.Digest(inv.AnalyzerArgs, inv.CompilerArgs, inv.TidyDirs)
	if err != nil {
		r.log.Debugf("fingerprinting abandoned: %v", err)
		return ""
	}
	return d
}

// runProcess is the default ExecFunc.
func runProcess(args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, err
}
