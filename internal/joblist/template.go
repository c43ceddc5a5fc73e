package joblist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/livinlefevreloca/postproc/internal/grouping"
)

// Placeholders every template may use.
const (
	PlaceholderOutput = "output"
	PlaceholderInputs = "inputs"
)

// ErrTemplate is returned for malformed command templates.
var ErrTemplate = errors.New("joblist: invalid command template")

var (
	placeholderRegex = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	safeWordRegex    = regexp.MustCompile(`^[A-Za-z0-9_./=:,+@%-]+$`)
)

// Template is a command line with named {placeholders}. Static variables
// are bound when the template is parsed; {output}, {inputs} and input roles
// are bound per work unit.
type Template struct {
	raw  string
	vars map[string]string
}

// ParseTemplate validates raw against the placeholders it may reference:
// output, inputs, the keys of vars, and roles.
func ParseTemplate(raw string, vars map[string]string, roles ...string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty command", ErrTemplate)
	}

	known := map[string]bool{PlaceholderOutput: true, PlaceholderInputs: true}
	for name := range vars {
		known[name] = true
	}
	for _, role := range roles {
		known[role] = true
	}

	for _, m := range placeholderRegex.FindAllStringSubmatch(raw, -1) {
		if !known[m[1]] {
			return nil, fmt.Errorf("%w: unknown placeholder {%s} in %q", ErrTemplate, m[1], raw)
		}
	}

	rest := placeholderRegex.ReplaceAllString(raw, "")
	if strings.ContainsAny(rest, "{}") {
		return nil, fmt.Errorf("%w: unbalanced brace in %q", ErrTemplate, raw)
	}

	bound := make(map[string]string, len(vars))
	for k, v := range vars {
		bound[k] = v
	}
	return &Template{raw: raw, vars: bound}, nil
}

// String returns the unrendered template.
func (t *Template) String() string {
	return t.raw
}

// Render substitutes unit paths into the template.
func (t *Template) Render(unit grouping.WorkUnit) (string, error) {
	values := make(map[string]string, len(t.vars)+len(unit.Inputs)+2)
	for k, v := range t.vars {
		values[k] = Quote(v)
	}
	for _, in := range unit.Inputs {
		values[in.Role] = Quote(in.File.Path)
	}
	values[PlaceholderOutput] = Quote(unit.Output)
	values[PlaceholderInputs] = QuoteAll(unit.InputPaths())

	var missing string
	out := placeholderRegex.ReplaceAllStringFunc(t.raw, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := values[name]
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("%w: unit %s has no value for {%s}", ErrTemplate, unit, missing)
	}
	return out, nil
}

// Quote makes s a single shell word, quoting only when needed.
func Quote(s string) string {
	if s != "" && safeWordRegex.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteAll quotes and space-joins words.
func QuoteAll(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	return strings.Join(quoted, " ")
}
