package redirect

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	radix "github.com/armon/go-radix"

	"github.com/blackwell-systems/edgeredirect/internal/normalize"
)

type compiledRule struct {
	Rule
	host          string
	target        *template
	preserveQuery bool
}

// Table is an immutable, ordered rule list. A Table is safe for concurrent
// use; configuration reloads build a new Table instead of changing one.
type Table struct {
	rules []compiledRule

	// hosts maps a normalized host to the positions of its rules, ascending.
	hosts *radix.Tree
}

// NewTable compiles rules in order. Every malformed rule is reported, each
// error wrapping ErrMalformedRule.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{
		rules: make([]compiledRule, 0, len(rules)),
		hosts: radix.New(),
	}

	var errs []error
	names := make(map[string]int, len(rules))
	for i, rule := range rules {
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i)
		}
		if prev, exists := names[rule.Name]; exists {
			errs = append(errs, fmt.Errorf("%w: rules[%d] name %q duplicates rules[%d]", ErrMalformedRule, i, rule.Name, prev))
			continue
		}
		names[rule.Name] = i

		compiled, err := compileRule(rule)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: rules[%d] (%s): %v", ErrMalformedRule, i, rule.Name, err))
			continue
		}
		t.rules = append(t.rules, compiled)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for i, rule := range t.rules {
		var positions []int
		if existing, ok := t.hosts.Get(rule.host); ok {
			positions = existing.([]int)
		}
		t.hosts.Insert(rule.host, append(positions, i))
	}

	return t, nil
}

// CheckRule reports whether a single rule would compile.
func CheckRule(rule Rule) error {
	_, err := compileRule(rule)
	return err
}

func compileRule(rule Rule) (compiledRule, error) {
	host := normalize.Host(rule.Host)
	if host == "" {
		return compiledRule{}, errors.New("host is required")
	}
	if strings.Contains(rule.Host, "*") {
		return compiledRule{}, fmt.Errorf("host %q: wildcards are not supported", rule.Host)
	}
	if err := normalize.CheckHost(host); err != nil {
		return compiledRule{}, err
	}
	if rule.PathPrefix != "" && !strings.HasPrefix(rule.PathPrefix, "/") {
		return compiledRule{}, fmt.Errorf("pathPrefix %q must start with /", rule.PathPrefix)
	}

	target, err := compileTemplate(rule.Target)
	if err != nil {
		return compiledRule{}, err
	}

	preserve := target.hasPath
	if rule.PreserveQuery != nil {
		preserve = *rule.PreserveQuery
	}

	return compiledRule{
		Rule:          rule,
		host:          host,
		target:        target,
		preserveQuery: preserve,
	}, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Rules returns a copy of the configured rules in evaluation order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, len(t.rules))
	for i, rule := range t.rules {
		out[i] = rule.Rule
		if rule.PreserveQuery != nil {
			out[i].PreserveQuery = Bool(*rule.PreserveQuery)
		}
	}
	return out
}

// Hosts returns the distinct normalized hosts that have at least one rule,
// sorted.
func (t *Table) Hosts() []string {
	if t == nil {
		return nil
	}
	hosts := make([]string, 0, t.hosts.Len())
	t.hosts.Walk(func(host string, _ interface{}) bool {
		hosts = append(hosts, host)
		return false
	})
	return hosts
}

// Evaluate returns the result of the first rule matching req. A request that
// matches nothing is not an error.
func (t *Table) Evaluate(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{Index: -1}, err
	}
	host := normalize.Host(req.Host)
	if host == "" {
		return Result{Index: -1}, fmt.Errorf("%w: host %q is empty after normalization", ErrInvalidRequest, req.Host)
	}
	if t == nil {
		return Result{Index: -1}, nil
	}

	candidates, ok := t.hosts.Get(host)
	if !ok {
		return Result{Index: -1}, nil
	}

	for _, i := range candidates.([]int) {
		rule := &t.rules[i]
		if rule.PathPrefix != "" && !strings.HasPrefix(req.Path, rule.PathPrefix) {
			continue
		}
		return Result{
			Matched:    true,
			Location:   rule.target.render(req.Path, req.Query, rule.preserveQuery),
			StatusCode: http.StatusMovedPermanently,
			Rule:       rule.Name,
			Index:      i,
		}, nil
	}

	return Result{Index: -1}, nil
}
