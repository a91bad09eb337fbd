package envs

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Command is a single resolved shell command of a script.
type Command struct {
	Text string
	// IgnoreErrors is set for commands declared with a leading "- ", whose
	// failures do not abort the script.
	IgnoreErrors bool
}

// ResolveScript expands a named script into its final command list. A
// command whose first word names another script of the same environment is
// replaced by that script's commands; any remaining words are appended to
// each substituted command. Reference cycles are an error.
func (e *Environment) ResolveScript(name string, args []string) ([]Command, error) {
	lines, ok := e.Scripts[name]
	if !ok {
		return nil, eris.Errorf("script %s not found in environment %s", name, e.Name)
	}

	seen := map[string]bool{name: true}
	commands, err := e.expandLines(lines, args, seen)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve script %s in environment %s", name, e.Name)
	}

	return commands, nil
}

func (e *Environment) expandLines(lines, args []string, seen map[string]bool) ([]Command, error) {
	result := make([]Command, 0, len(lines))

	for _, line := range lines {
		ignoreErrors := false
		if strings.HasPrefix(line, "- ") {
			ignoreErrors = true
			line = strings.TrimSpace(line[2:])
		}

		word, rest := splitFirstWord(line)
		nested, ok := e.Scripts[word]
		if !ok {
			result = append(result, Command{Text: withArgs(line, args), IgnoreErrors: ignoreErrors})
			continue
		}

		if seen[word] {
			return nil, eris.Errorf("script %s is referenced recursively", word)
		}
		seen[word] = true

		nestedArgs := args
		if rest != "" {
			nestedArgs = append(strings.Fields(rest), args...)
		}

		expanded, err := e.expandLines(nested, nestedArgs, seen)
		if err != nil {
			return nil, err
		}

		for _, cmd := range expanded {
			// an ignored reference makes every substituted command ignored
			cmd.IgnoreErrors = cmd.IgnoreErrors || ignoreErrors
			result = append(result, cmd)
		}

		delete(seen, word)
	}

	return result, nil
}

func splitFirstWord(line string) (string, string) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) == 1 {
		return fields[0], ""
	}

	return fields[0], strings.TrimSpace(fields[1])
}

func withArgs(line string, args []string) string {
	if len(args) == 0 {
		return line
	}

	return line + " " + strings.Join(args, " ")
}
