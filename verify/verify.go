// Package verify checks deliverables against acceptance criteria. Three
// tiers: a local script runner for testable work, a Docker sandbox for
// untrusted criteria, and an AI judge for subjective work. Every tier
// reports a tagged Outcome; when no tier can reach a verdict the outcome is
// Inconclusive, never a guess.
package verify

// Outcome is a verification verdict. The zero value is Inconclusive so a
// half-built report can never read as a pass or a fail.
type Outcome int

const (
	Inconclusive Outcome = iota
	Passed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	}
	return "inconclusive"
}

// Report is the result of a script-based verification run.
type Report struct {
	Outcome Outcome
	Summary string
	Stdout  string
	Stderr  string
}
