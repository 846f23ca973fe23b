package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GoCodeAlone/swarm/provider/mock"
)

func TestJudge_FirstParsableVerdictWins(t *testing.T) {
	cheap := mock.Named("cheap", `{"passed": true, "score": 8, "completeness": 9, "correctness": 8, "relevance": 7, "summary": "meets the spec"}`)
	expensive := mock.Named("expensive", `{"passed": false, "score": 1}`)

	j := NewJudge(nil, cheap, expensive)
	v, err := j.Judge(context.Background(), "write a greeting", "must say hello", "hello world")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Outcome != Passed {
		t.Errorf("outcome = %s, want passed", v.Outcome)
	}
	if v.Model != "cheap" {
		t.Errorf("model = %q, want the first provider", v.Model)
	}
	if v.Score != 8 || v.Completeness != 9 {
		t.Errorf("scores = %d/%d, want 8/9", v.Score, v.Completeness)
	}
	if expensive.Calls() != 0 {
		t.Errorf("expensive provider was consulted %d times, want 0", expensive.Calls())
	}
}

func TestJudge_FallsThroughFailingProviders(t *testing.T) {
	down := mock.Failing("down", errors.New("connection refused"))
	offFormat := mock.Named("chatty", "I think this looks pretty good overall!")
	working := mock.Named("backup", `prefix text {"passed": false, "score": 2, "summary": "missing sections"} suffix`)

	j := NewJudge(nil, down, offFormat, working)
	v, err := j.Judge(context.Background(), "task", "criteria", "deliverable")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Outcome != Failed {
		t.Errorf("outcome = %s, want failed", v.Outcome)
	}
	if v.Model != "backup" {
		t.Errorf("model = %q, want backup", v.Model)
	}
	if v.Summary != "missing sections" {
		t.Errorf("summary = %q", v.Summary)
	}
}

func TestJudge_AllFail_Inconclusive(t *testing.T) {
	j := NewJudge(nil,
		mock.Failing("a", errors.New("down")),
		mock.Named("b", "no json here"),
	)
	v, err := j.Judge(context.Background(), "task", "", "deliverable")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Outcome != Inconclusive {
		t.Errorf("outcome = %s, want inconclusive when no model answers", v.Outcome)
	}
	if v.Model != "none" {
		t.Errorf("model = %q, want none", v.Model)
	}
}

func TestJudge_CapsDeliverableExcerpt(t *testing.T) {
	m := mock.Named("m", `{"passed": true, "score": 5, "summary": "ok"}`)
	j := NewJudge(nil, m)

	long := strings.Repeat("x", maxDeliverableExcerpt*2)
	if _, err := j.Judge(context.Background(), "task", "criteria", long); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if len(m.Prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(m.Prompts))
	}
	if strings.Count(m.Prompts[0], "x") > maxDeliverableExcerpt {
		t.Errorf("prompt carries %d deliverable bytes, want at most %d",
			strings.Count(m.Prompts[0], "x"), maxDeliverableExcerpt)
	}
}
