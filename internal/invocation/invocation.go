// Package invocation classifies a ctcache command line and recovers the
// compiler command that reproduces the preprocessed translation unit.
package invocation

import (
	"errors"
	"strings"

	"github.com/gophersatwork/ctcache/internal/compiledb"
)

// Mode selects what the process does. Management modes are recognized from
// the first argument only; anything else wraps an analyzer invocation.
type Mode int

const (
	ModeRun Mode = iota
	ModePrintCacheDir
	ModeShowStats
	ModeClean
	ModeZeroStats
)

// tidyDirsFlag is a synthetic flag injected by build integrations to name
// the directories whose .clang-tidy files may contribute to the digest.
// The separator is '*' because it cannot appear in a filesystem path on the
// platforms we care about.
const tidyDirsFlag = "--directories_with_clang_tidy="

// ErrNoArgs is returned for an empty argument vector.
var ErrNoArgs = errors.New("no arguments")

// Invocation is the immutable record of one parsed command line.
type Invocation struct {
	Mode Mode

	// Original is the verbatim argument vector (synthetic flag removed),
	// used to invoke the analyzer on a miss.
	Original []string

	// AnalyzerArgs feed the fingerprint: the slice before the "--"
	// separator in inline mode, or the whole vector with the -p= form
	// normalized to two tokens in compile-DB mode.
	AnalyzerArgs []string

	// CompilerArgs reproduce the translation unit. Empty when no compiler
	// command could be recovered; fingerprinting is then abandoned.
	CompilerArgs []string

	// TidyDirs are the directories whose .clang-tidy files are considered.
	TidyDirs []string
}

// Parse classifies args (the argument vector minus the program name).
// The resolver is consulted only in compile-DB mode.
func Parse(args []string, resolver *compiledb.Resolver) (*Invocation, error) {
	if len(args) == 0 {
		return nil, ErrNoArgs
	}

	switch args[0] {
	case "--cache-dir":
		return &Invocation{Mode: ModePrintCacheDir}, nil
	case "--show-stats":
		return &Invocation{Mode: ModeShowStats}, nil
	case "--clean":
		return &Invocation{Mode: ModeClean}, nil
	case "--zero-stats":
		return &Invocation{Mode: ModeZeroStats}, nil
	}

	args, tidyDirs := extractTidyDirs(args)

	inv := &Invocation{
		Mode:     ModeRun,
		TidyDirs: tidyDirs,
	}

	if i := indexOf(args, "--"); i >= 0 {
		// Inline mode: [analyzer args] -- [compiler args]. The analyzer is
		// re-invoked with the whole vector; only the slice before the
		// separator feeds the fingerprint as analyzer args.
		inv.Original = args
		inv.AnalyzerArgs = args[:i]
		inv.CompilerArgs = args[i+1:]
		return inv, nil
	}

	// Compile-DB mode: -p <dir> names the database directory and the first
	// following non-flag token names the source file.
	inv.Original = args
	inv.AnalyzerArgs = splitEquals(args, "-p")
	if dbDir, source, ok := compileDBQuery(inv.AnalyzerArgs); ok {
		inv.CompilerArgs = resolver.CommandFor(dbDir, source)
	}
	return inv, nil
}

// extractTidyDirs removes the synthetic directories flag from args and
// returns the directory list it carried.
func extractTidyDirs(args []string) ([]string, []string) {
	var dirs []string
	kept := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, tidyDirsFlag) {
			for _, d := range strings.Split(strings.TrimPrefix(arg, tidyDirsFlag), "*") {
				if d != "" {
					dirs = append(dirs, d)
				}
			}
			continue
		}
		kept = append(kept, arg)
	}
	return kept, dirs
}

// splitEquals rewrites every "<flag>=<value>" token into the two-token form
// so that "-p=DIR" and "-p DIR" parse identically.
func splitEquals(args []string, flag string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, flag+"=") {
			out = append(out, flag, strings.TrimPrefix(arg, flag+"="))
			continue
		}
		out = append(out, arg)
	}
	return out
}

// compileDBQuery finds the database directory named by -p and the first
// non-flag token after it, which names the source file.
func compileDBQuery(args []string) (dbDir, source string, ok bool) {
	i := indexOf(args, "-p")
	if i < 0 || i+1 >= len(args) {
		return "", "", false
	}
	dbDir = args[i+1]
	for _, arg := range args[i+2:] {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return dbDir, arg, true
	}
	return "", "", false
}

func indexOf(args []string, want string) int {
	for i, arg := range args {
		if arg == want {
			return i
		}
	}
	return -1
}
