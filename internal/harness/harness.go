// Package harness provides test infrastructure for validating the
// previrtualizer's passes against fixture IR modules: each case builds a
// fixture module, runs one pass over it, and compares the surviving
// functions and their linkage against expectations.
package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sri-occam/previrt/internal/ir"
)

// Pass is a previrtualizer pass under test: it mutates m in place and
// reports whether it made any change.
type Pass func(m *ir.Module) (modified bool, err error)

// TestCase describes one fixture module and the outcome a pass should
// produce against it.
type TestCase struct {
	// Name is a descriptive name for this case.
	Name string

	// BuildModule constructs the fixture module fresh for this case (fresh
	// per run, since passes mutate in place).
	BuildModule func() *ir.Module

	// Pass is the function under test.
	Pass Pass

	// ExpectedModified is the modified return value Pass should produce.
	ExpectedModified bool

	// ExpectedFunctions lists function names that must be present in the
	// module after Pass runs (survivors, plus any new clones/bounces).
	ExpectedFunctions []ExpectedFunc

	// ExpectedAbsentFunctions lists function names that must NOT be
	// present after Pass runs (anything the pass should have eliminated).
	ExpectedAbsentFunctions []string

	// ExpectedErrorContains, if non-empty, asserts Pass returns an error
	// whose message contains this substring, and skips every other
	// assertion for this case.
	ExpectedErrorContains string
}

// ExpectedFunc names a function expected to survive a pass, optionally
// with an expected linkage.
type ExpectedFunc struct {
	Name    string
	Linkage *ir.Linkage // nil: don't check linkage
}

// Result is the outcome of running one TestCase.
type Result struct {
	Case    TestCase
	Success bool
	Message string
	Details []string
}

// Run executes every case as a subtest, checking every expectation and
// failing a case once with the full list of mismatches.
func Run(t *testing.T, cases []TestCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			res := runCase(tc)
			if !res.Success {
				t.Fatalf("%s:\n%s", res.Message, strings.Join(res.Details, "\n"))
			}
		})
	}
}

func runCase(tc TestCase) *Result {
	m := tc.BuildModule()
	modified, err := tc.Pass(m)

	if tc.ExpectedErrorContains != "" {
		if err == nil || !strings.Contains(err.Error(), tc.ExpectedErrorContains) {
			return &Result{Case: tc, Success: false,
				Message: fmt.Sprintf("expected error containing %q, got %v", tc.ExpectedErrorContains, err)}
		}
		return &Result{Case: tc, Success: true}
	}
	if err != nil {
		return &Result{Case: tc, Success: false, Message: fmt.Sprintf("unexpected error: %v", err)}
	}

	var details []string
	success := true

	if modified != tc.ExpectedModified {
		success = false
		details = append(details, fmt.Sprintf("modified = %v, want %v", modified, tc.ExpectedModified))
	}

	for _, ef := range tc.ExpectedFunctions {
		f, ok := m.Functions[ef.Name]
		if !ok {
			success = false
			details = append(details, "missing expected function: "+ef.Name)
			continue
		}
		if ef.Linkage != nil && f.Linkage != *ef.Linkage {
			success = false
			details = append(details, fmt.Sprintf("%s: linkage = %s, want %s", ef.Name, f.Linkage, *ef.Linkage))
		}
	}

	var unexpected []string
	for _, name := range tc.ExpectedAbsentFunctions {
		if _, ok := m.Functions[name]; ok {
			unexpected = append(unexpected, name)
		}
	}
	sort.Strings(unexpected)
	for _, name := range unexpected {
		success = false
		details = append(details, "function should have been eliminated: "+name)
	}

	message := "ok"
	if !success {
		message = fmt.Sprintf("case %q failed", tc.Name)
	}
	return &Result{Case: tc, Success: success, Message: message, Details: details}
}

// RequireModule is a convenience assertion for ad hoc checks a TestCase's
// ExpectedFunctions/ExpectedAbsentFunctions can't express (e.g. call-site
// retargeting), kept separate from Run so callers can mix declarative cases
// with a handful of pointed assertions.
func RequireModule(t *testing.T, m *ir.Module, fn string) *ir.Function {
	t.Helper()
	f, ok := m.Functions[fn]
	require.True(t, ok, "function %s not found in module", fn)
	return f
}
