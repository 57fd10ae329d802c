package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// Kind is a tool type the assistant service knows how to run.
type Kind string

const (
	CodeInterpreter Kind = "code_interpreter"
	Retrieval       Kind = "retrieval"
	FileSearch      Kind = "file_search"
	Function        Kind = "function"
)

var ErrUnknownTool = errors.New("unknown tool")

var known = map[Kind]struct{}{
	CodeInterpreter: {},
	Retrieval:       {},
	FileSearch:      {},
	Function:        {},
}

// Parse turns configured tool names into run descriptors, keeping the first
// occurrence of each. Blank names are skipped.
func Parse(names []string) ([]domain.ToolDescriptor, error) {
	seen := make(map[Kind]bool, len(names))
	var out []domain.ToolDescriptor
	for _, raw := range names {
		name := Kind(strings.ToLower(strings.TrimSpace(raw)))
		if name == "" {
			continue
		}
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTool, raw)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, domain.ToolDescriptor{Type: string(name)})
	}
	return out, nil
}

// Names is the inverse of Parse, for logs and CLI output.
func Names(tools []domain.ToolDescriptor) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Type)
	}
	return out
}
