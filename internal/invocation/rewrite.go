package invocation

// The recovered compiler command compiles; we need it to preprocess to
// stdout with stable output. Each transform below is pure: it returns a new
// vector and leaves its input alone.

// RewriteForPreprocess turns a compile command into the canonical
// preprocess-only command whose stdout feeds the fingerprint.
func RewriteForPreprocess(args []string) []string {
	args = insertAnalyzerMacro(args)
	args = redirectOutput(args)
	args = preprocessOnly(args)
	return insertSuppressLineMarkers(args)
}

// insertAnalyzerMacro defines __clang_analyzer__ the way the analyzer's own
// preprocessing does, so conditional code sees the same world.
func insertAnalyzerMacro(args []string) []string {
	if len(args) == 0 {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], "-D__clang_analyzer__=1")
	return append(out, args[1:]...)
}

// redirectOutput replaces the argument following -o/--output with "-" so the
// preprocessed text lands on stdout.
func redirectOutput(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "-o" || out[i] == "--output" {
			out[i+1] = "-"
		}
	}
	return out
}

// preprocessOnly maps -c to -E.
func preprocessOnly(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == "-c" {
			arg = "-E"
		}
		out[i] = arg
	}
	return out
}

// insertSuppressLineMarkers inserts -P after each -E. Line markers embed
// absolute paths and would poison the digest.
func insertSuppressLineMarkers(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, arg := range args {
		out = append(out, arg)
		if arg == "-E" {
			out = append(out, "-P")
		}
	}
	return out
}
