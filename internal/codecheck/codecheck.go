// Package codecheck screens submitted source text before it is queued for
// execution. The checks are textual filters, not a sandbox.
package codecheck

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type ViolationKind string

const (
	ViolationImport  ViolationKind = "import"
	ViolationBuiltin ViolationKind = "builtin"
)

// Violation describes one offending construct in the source.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	Construct string        `json:"construct"`
	Line      int           `json:"line"`
	Message   string        `json:"message"`
}

// Checker is the pluggable submission validator used by intake.
type Checker interface {
	Check(code string) []Violation
}

// DefaultAllowedImports is the module allow-list for the Python runtime.
var DefaultAllowedImports = []string{
	"string", "re", "enum", "datetime",
	"numbers", "math", "cmath", "decimal", "fractions", "random", "statistics",
	"itertools", "csv",
}

// DefaultDeniedBuiltins are builtins that give access to the interpreter or
// the filesystem.
var DefaultDeniedBuiltins = []string{
	"compile", "eval", "exec", "globals", "help", "locals", "open", "vars", "__import__",
}

var (
	fromImportRe = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\b`)
	importRe     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	aliasRe      = regexp.MustCompile(`^([\w.]+)(?:\s+as\s+\w+)?$`)
)

// RegexChecker implements Checker with an import allow-list and a builtin
// deny-list matched against raw source lines.
type RegexChecker struct {
	allowed  map[string]struct{}
	builtins map[string]*regexp.Regexp
}

func NewRegexChecker(allowedImports, deniedBuiltins []string) *RegexChecker {
	c := &RegexChecker{
		allowed:  make(map[string]struct{}, len(allowedImports)),
		builtins: make(map[string]*regexp.Regexp, len(deniedBuiltins)),
	}
	for _, m := range allowedImports {
		c.allowed[m] = struct{}{}
	}
	for _, b := range deniedBuiltins {
		// call at line start or after a character that cannot continue an
		// identifier or attribute access
		c.builtins[b] = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.])` + regexp.QuoteMeta(b) + `\s*\(`)
	}
	return c
}

func NewPythonChecker() *RegexChecker {
	return NewRegexChecker(DefaultAllowedImports, DefaultDeniedBuiltins)
}

func (c *RegexChecker) Check(code string) []Violation {
	var violations []Violation

	for i, line := range strings.Split(code, "\n") {
		lineNo := i + 1
		for _, stmt := range statements(line) {
			violations = append(violations, c.checkImports(stmt, lineNo)...)
		}
		violations = append(violations, c.checkBuiltins(line, lineNo)...)
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Line < violations[j].Line
	})
	return violations
}

// statements splits a line on ";" and on the colon that opens a one-line
// compound statement body ("if x: import os").
func statements(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ';' || r == ':'
	})
}

func (c *RegexChecker) checkImports(stmt string, line int) []Violation {
	if m := fromImportRe.FindStringSubmatch(stmt); m != nil {
		if !c.isAllowed(m[1]) {
			return []Violation{importViolation(m[1], line)}
		}
		return nil
	}

	m := importRe.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}

	var violations []Violation
	for _, item := range strings.Split(m[1], ",") {
		item = strings.TrimSpace(item)
		am := aliasRe.FindStringSubmatch(item)
		if am == nil {
			violations = append(violations, importViolation(item, line))
			continue
		}
		if !c.isAllowed(am[1]) {
			violations = append(violations, importViolation(am[1], line))
		}
	}
	return violations
}

func (c *RegexChecker) checkBuiltins(line string, lineNo int) []Violation {
	names := make([]string, 0, len(c.builtins))
	for name := range c.builtins {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for _, name := range names {
		if c.builtins[name].MatchString(line) {
			violations = append(violations, Violation{
				Kind:      ViolationBuiltin,
				Construct: name,
				Line:      lineNo,
				Message:   fmt.Sprintf("built-in function %s is not allowed", name),
			})
		}
	}
	return violations
}

// isAllowed checks the top-level package of a dotted module path.
func (c *RegexChecker) isAllowed(module string) bool {
	root := module
	if i := strings.Index(module, "."); i >= 0 {
		root = module[:i]
	}
	_, ok := c.allowed[root]
	return ok
}

func importViolation(module string, line int) Violation {
	return Violation{
		Kind:      ViolationImport,
		Construct: module,
		Line:      line,
		Message:   fmt.Sprintf("import of %s is not allowed", module),
	}
}
