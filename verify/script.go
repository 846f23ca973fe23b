package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	scriptName    = "acceptance_test.sh"
	maxSummaryLen = 200
)

// scriptTimeout bounds one acceptance run. A variable so tests can shorten
// the wall clock.
var scriptTimeout = 30 * time.Second

// RunScript writes the acceptance criteria into workDir as a shell script
// and executes it with a 30 second wall clock. Exit zero is a pass; a
// nonzero exit or timeout is a fail with the output captured. Only an
// inability to stage the script is an error.
func RunScript(ctx context.Context, workDir, criteria string) (*Report, error) {
	scriptPath := filepath.Join(workDir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(criteria), 0o755); err != nil {
		return nil, fmt.Errorf("write acceptance script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", scriptName)
	cmd.Dir = workDir
	var stdout, stderr limitedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	report := &Report{Stdout: stdout.String(), Stderr: stderr.String()}
	switch {
	case err == nil:
		report.Outcome = Passed
		report.Summary = "All acceptance tests passed."
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		report.Outcome = Failed
		report.Summary = truncate(fmt.Sprintf("Acceptance test timed out after %s", scriptTimeout), maxSummaryLen)
	default:
		report.Outcome = Failed
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		report.Summary = truncate("Acceptance test failed: "+detail, maxSummaryLen)
	}
	return report, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// limitedBuffer caps captured output at 64 KiB so a runaway script cannot
// balloon the report.
type limitedBuffer struct {
	buf []byte
}

const outputCap = 64 * 1024

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := outputCap - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
