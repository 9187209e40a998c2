package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// reservedFlags are owned by the composition itself and may not be supplied
// through operator extra args.
var reservedFlags = map[string]bool{
	"-i":              true,
	"-filter_complex": true,
	"-lavfi":          true,
	"-map":            true,
	"-progress":       true,
	"-stream_loop":    true,
}

// SplitCommand splits an argument string without involving a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	return args, nil
}

// SanitizeArgs rejects extra encoder args that would rewire inputs, outputs
// or the filter graph, or that carry shell metacharacters.
func SanitizeArgs(args []string) error {
	for _, arg := range args {
		if reservedFlags[arg] {
			return fmt.Errorf("reserved flag not allowed in extra args: %s", arg)
		}
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return nil
}
