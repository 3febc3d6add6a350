package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const ModeDispatch = "dispatch-service"

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeDispatch, "dispatch", "d":
		return ModeDispatch, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `dispatch-service --prefetch=16`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<service>")
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}

	return m, out, nil
}

// ValidateDispatchFlags checks the numeric flags of the dispatch service.
func ValidateDispatchFlags(prefetch, maxConcurrent int) error {
	if prefetch <= 0 {
		return errors.New("--prefetch must be > 0")
	}
	if maxConcurrent < 1 {
		return errors.New("--max-concurrent must be >= 1")
	}
	return nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./shipease --mode=<service> [flags]

Services (modes):
  dispatch-service             Sequential driver matching, driver and rider websockets

Examples:
  ./shipease --mode=dispatch-service
  ./shipease --mode=dispatch-service --config=/etc/shipease/config.yaml --prefetch=16 --max-concurrent=300`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./shipease --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
