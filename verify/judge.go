package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/GoCodeAlone/swarm/provider"
)

const (
	// maxDeliverableExcerpt caps how much of the deliverable goes into the
	// prompt.
	maxDeliverableExcerpt = 4000

	judgeSystem = "You are a verification agent. Compare deliverables against task specifications and acceptance criteria. Reply only with the requested JSON."

	judgeMaxTokens = 512
)

// Verdict is the AI judge's structured assessment. Scores are 1-10 as
// reported by the model; with an Inconclusive outcome they carry no meaning.
type Verdict struct {
	Outcome      Outcome
	Score        int
	Completeness int
	Correctness  int
	Relevance    int
	Summary      string
	Model        string
	Raw          string
}

// verdictRE pulls the first JSON object mentioning "passed" out of a model
// response that may wrap it in prose.
var verdictRE = regexp.MustCompile(`(?s)\{[^{}]*"passed"[^{}]*\}`)

// Judge evaluates subjective deliverables by asking AI providers, cheapest
// first. The first provider whose response parses as the verdict shape wins.
type Judge struct {
	providers []provider.Provider
	logger    *slog.Logger
}

// NewJudge returns a judge trying providers in the given order. The order is
// the cost order: put cheap models first.
func NewJudge(logger *slog.Logger, providers ...provider.Provider) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{providers: providers, logger: logger}
}

// Judge asks each provider in turn for a structured verdict. A provider that
// errors or answers off-format is skipped. When every provider fails the
// verdict is Inconclusive, not an error and not a guess.
func (j *Judge) Judge(ctx context.Context, taskDescription, criteria, deliverable string) (*Verdict, error) {
	prompt := j.buildPrompt(taskDescription, criteria, deliverable)

	for _, p := range j.providers {
		resp, err := p.Complete(ctx, provider.Request{
			System:    judgeSystem,
			Prompt:    prompt,
			MaxTokens: judgeMaxTokens,
		})
		if err != nil {
			j.logger.Debug("judge provider failed", "provider", p.Name(), "error", err)
			continue
		}
		match := verdictRE.FindString(resp.Content)
		if match == "" {
			j.logger.Debug("judge provider answered off-format", "provider", p.Name())
			continue
		}
		var parsed struct {
			Passed       bool   `json:"passed"`
			Score        int    `json:"score"`
			Completeness int    `json:"completeness"`
			Correctness  int    `json:"correctness"`
			Relevance    int    `json:"relevance"`
			Summary      string `json:"summary"`
		}
		if err := json.Unmarshal([]byte(match), &parsed); err != nil {
			j.logger.Debug("judge verdict unparsable", "provider", p.Name(), "error", err)
			continue
		}
		outcome := Failed
		if parsed.Passed {
			outcome = Passed
		}
		return &Verdict{
			Outcome:      outcome,
			Score:        parsed.Score,
			Completeness: parsed.Completeness,
			Correctness:  parsed.Correctness,
			Relevance:    parsed.Relevance,
			Summary:      parsed.Summary,
			Model:        p.Name(),
			Raw:          resp.Content,
		}, nil
	}

	return &Verdict{
		Outcome: Inconclusive,
		Summary: "AI verification unavailable: no model produced a parsable verdict",
		Model:   "none",
	}, nil
}

func (j *Judge) buildPrompt(taskDescription, criteria, deliverable string) string {
	if criteria == "" {
		criteria = "None specified. Evaluate based on the task description."
	}
	if len(deliverable) > maxDeliverableExcerpt {
		deliverable = deliverable[:maxDeliverableExcerpt]
	}
	return fmt.Sprintf(`Compare this deliverable against the task specification and acceptance criteria.

TASK: %s

ACCEPTANCE CRITERIA:
%s

DELIVERABLE:
%s

Score 1-10 on: completeness, correctness, relevance.
Reply with EXACTLY this JSON format:
{"passed": true/false, "score": N, "completeness": N, "correctness": N, "relevance": N, "summary": "one line reason"}`,
		taskDescription, criteria, deliverable)
}
