package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nvandessel/sdrun/internal/logging"
	"github.com/nvandessel/sdrun/internal/scenario"
	"github.com/nvandessel/sdrun/internal/similarity"
)

// maxSuggestions caps the "did you mean" candidates per equation.
const maxSuggestions = 3

var subscriptPattern = regexp.MustCompile(`\[([^)]+)\]`)

// BaseEquationName strips the subscript group from name, removing every
// occurrence of the matched text: "stock[1]" and "var[*]" become "stock" and
// "var". The group spans from the first '[' to the last ']'. Names without
// a subscript are returned as is.
func BaseEquationName(name string) string {
	match := subscriptPattern.FindString(name)
	if match == "" {
		return name
	}
	return strings.ReplaceAll(name, match, "")
}

// EquationIndex maps requested equation names, as requested, to the
// scenarios whose model defines the base name. Names keep request order.
type EquationIndex struct {
	names   []string
	entries map[string][]string
}

// Names returns the requested names in request order.
func (x EquationIndex) Names() []string {
	return append([]string(nil), x.names...)
}

// Scenarios returns the scenario names able to supply name.
func (x EquationIndex) Scenarios(name string) []string {
	return append([]string(nil), x.entries[name]...)
}

// Has reports whether name was requested.
func (x EquationIndex) Has(name string) bool {
	_, ok := x.entries[name]
	return ok
}

// Len returns the number of requested names.
func (x EquationIndex) Len() int { return len(x.names) }

// Unresolved returns the requested names no scenario can supply.
func (x EquationIndex) Unresolved() []string {
	var out []string
	for _, name := range x.names {
		if len(x.entries[name]) == 0 {
			out = append(out, name)
		}
	}
	return out
}

// Resolve builds the equation index for requested over scenarios and
// returns it with every equation name the scenarios' models define, in
// first-seen order. Each unresolved name yields an ERROR diagnostic with
// nearest-name suggestions when there are any. Resolve never fails.
func Resolve(requested []string, scenarios []*scenario.Scenario, sink logging.Sink) (EquationIndex, []string) {
	if sink == nil {
		sink = logging.Discard
	}

	known := knownEquations(scenarios)

	idx := EquationIndex{entries: make(map[string][]string, len(requested))}
	for _, name := range requested {
		if _, dup := idx.entries[name]; dup {
			continue
		}
		idx.names = append(idx.names, name)
		idx.entries[name] = []string{}
	}

	for _, sc := range scenarios {
		for _, name := range idx.names {
			if sc.Model.Has(BaseEquationName(name)) {
				idx.entries[name] = append(idx.entries[name], sc.Name)
			}
		}
	}

	for _, name := range idx.Unresolved() {
		nearest := similarity.Suggest(name, known, maxSuggestions)
		if len(nearest) > 0 {
			sink.Log(logging.LevelError, fmt.Sprintf("No simulation model containing equation %q. Did you maybe mean one of %q?",
				name, strings.Join(nearest, ", ")))
			continue
		}
		sink.Log(logging.LevelError, fmt.Sprintf("No simulation model containing equation %q", name))
	}

	return idx, known
}

func knownEquations(scenarios []*scenario.Scenario) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sc := range scenarios {
		for _, name := range sc.Model.Names() {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
