package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"sable/internal/ir"
)

// A .sir file drives the optimizer through directive comments:
//
//	// opt: dce
//	// opt: inline all
//	// opt: inline blocks=2 instrs=20 stack=16
//	// opt: pipeline all
//
// and states expectations about the printed result:
//
//	// check: <substring that must appear>
//	// not:   <substring that must not appear>
//
// Budget keys left out of an inline directive default to unlimited.

// PassSpec is one requested pass.
type PassSpec struct {
	Name   string // "dce", "inline" or "pipeline"
	Policy ir.Policy
}

// Directives is everything the comment layer of a file asked for.
type Directives struct {
	Passes []PassSpec
	Checks []string
	Nots   []string
}

const unlimited = int(^uint(0) >> 1)

// ParseDirectives scans the raw source for directive comments. The comment
// layer is independent of the grammar, so malformed IR still yields its
// directives.
func ParseDirectives(source string) (*Directives, error) {
	d := &Directives{}
	for ln, line := range strings.Split(source, "\n") {
		text, ok := strings.CutPrefix(strings.TrimSpace(line), "//")
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)

		switch {
		case strings.HasPrefix(text, "opt:"):
			spec, err := parsePassSpec(strings.TrimSpace(strings.TrimPrefix(text, "opt:")))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", ln+1, err)
			}
			d.Passes = append(d.Passes, spec)
		case strings.HasPrefix(text, "check:"):
			d.Checks = append(d.Checks, strings.TrimSpace(strings.TrimPrefix(text, "check:")))
		case strings.HasPrefix(text, "not:"):
			d.Nots = append(d.Nots, strings.TrimSpace(strings.TrimPrefix(text, "not:")))
		}
	}
	return d, nil
}

func parsePassSpec(text string) (PassSpec, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return PassSpec{}, &ir.PolicyError{Directive: "opt:", Msg: "missing pass name"}
	}

	name, rest := fields[0], fields[1:]
	switch name {
	case "dce":
		if len(rest) != 0 {
			return PassSpec{}, &ir.PolicyError{Directive: text, Msg: "dce takes no arguments"}
		}
		return PassSpec{Name: name}, nil
	case "inline", "pipeline":
		policy, err := parsePolicy(text, rest)
		if err != nil {
			return PassSpec{}, err
		}
		return PassSpec{Name: name, Policy: policy}, nil
	}
	return PassSpec{}, &ir.PolicyError{Directive: text, Msg: fmt.Sprintf("unknown pass %q", name)}
}

func parsePolicy(directive string, args []string) (ir.Policy, error) {
	policy := ir.Policy{MaxBlocks: unlimited, MaxInstrs: unlimited, MaxStackBytes: unlimited}
	seen := make(map[string]bool)

	for _, arg := range args {
		if arg == "all" {
			if len(args) > 1 {
				return ir.Policy{}, &ir.PolicyError{Directive: directive, Msg: "\"all\" excludes size budgets"}
			}
			return ir.InlineAll(), nil
		}

		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return ir.Policy{}, &ir.PolicyError{Directive: directive, Msg: fmt.Sprintf("malformed budget %q", arg)}
		}
		if seen[key] {
			return ir.Policy{}, &ir.PolicyError{Directive: directive, Msg: fmt.Sprintf("duplicate budget key %q", key)}
		}
		seen[key] = true

		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return ir.Policy{}, &ir.PolicyError{Directive: directive, Msg: fmt.Sprintf("bad budget value %q", arg)}
		}
		switch key {
		case "blocks":
			policy.MaxBlocks = n
		case "instrs":
			policy.MaxInstrs = n
		case "stack":
			policy.MaxStackBytes = n
		default:
			return ir.Policy{}, &ir.PolicyError{Directive: directive, Msg: fmt.Sprintf("unknown budget key %q", key)}
		}
	}
	return policy, nil
}

// Run executes the directive passes against a module.
func (d *Directives) Run(m *ir.Module) error {
	for _, spec := range d.Passes {
		switch spec.Name {
		case "dce":
			if _, err := (ir.DcePass{}).Apply(m); err != nil {
				return err
			}
		case "inline":
			if _, err := (ir.InlinePass{Policy: spec.Policy}).Apply(m); err != nil {
				return err
			}
		case "pipeline":
			if err := ir.Optimize(m, ir.Options{Policy: spec.Policy}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Expect checks the printed module text against the file's check and not
// directives, returning one error per violation.
func (d *Directives) Expect(printed string) []error {
	var errs []error
	for _, want := range d.Checks {
		if !strings.Contains(printed, want) {
			errs = append(errs, fmt.Errorf("missing expected line %q", want))
		}
	}
	for _, not := range d.Nots {
		if strings.Contains(printed, not) {
			errs = append(errs, fmt.Errorf("forbidden line %q present", not))
		}
	}
	return errs
}
