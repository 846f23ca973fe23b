// Package reputation derives trust scores from on-chain escrow history. No
// reviews, no stars, no subjective input: every released escrow is a line on
// the resume, every dispute is a scar. Scans are chunked, retried, and
// cached behind a Store so repeat queries only read new blocks.
package reputation

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoCodeAlone/swarm/chain"
)

// Task lifecycle statuses as replayed from events.
const (
	taskActive   = "active"
	taskReleased = "released"
	taskDisputed = "disputed"
	taskRefunded = "refunded"
)

// WorkerSide summarizes an address's history as the paid party.
type WorkerSide struct {
	JobsCompleted  int    `json:"jobsCompleted"`
	JobsDisputed   int    `json:"jobsDisputed"`
	JobsRefunded   int    `json:"jobsRefunded"`
	JobsActive     int    `json:"jobsActive"`
	TotalEarned    string `json:"totalEarned"`
	CompletionRate string `json:"completionRate"`
	DisputeRate    string `json:"disputeRate"`
}

// RequestorSide summarizes an address's history as the paying party.
type RequestorSide struct {
	JobsPosted     int    `json:"jobsPosted"`
	JobsCompleted  int    `json:"jobsCompleted"`
	JobsDisputed   int    `json:"jobsDisputed"`
	TotalSpent     string `json:"totalSpent"`
	CompletionRate string `json:"completionRate"`
}

// Profile is the full reputation of one address. Token amounts are at 6
// decimals; TrustScore is 0-100.
type Profile struct {
	Address     common.Address `json:"address"`
	Worker      WorkerSide     `json:"worker"`
	Requestor   RequestorSide  `json:"requestor"`
	TrustScore  int            `json:"trustScore"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

// Format renders the profile for display.
func (p *Profile) Format() string {
	lines := []string{
		fmt.Sprintf("reputation for %s", p.Address),
		fmt.Sprintf("  trust score: %d/100", p.TrustScore),
		"",
		"  as worker:",
		fmt.Sprintf("    completed: %d | disputed: %d | refunded: %d",
			p.Worker.JobsCompleted, p.Worker.JobsDisputed, p.Worker.JobsRefunded),
		fmt.Sprintf("    earned: %s USDC | completion: %s | disputes: %s",
			p.Worker.TotalEarned, p.Worker.CompletionRate, p.Worker.DisputeRate),
		"",
		"  as requestor:",
		fmt.Sprintf("    posted: %d | completed: %d | disputed: %d",
			p.Requestor.JobsPosted, p.Requestor.JobsCompleted, p.Requestor.JobsDisputed),
		fmt.Sprintf("    spent: %s USDC | completion: %s",
			p.Requestor.TotalSpent, p.Requestor.CompletionRate),
	}
	return strings.Join(lines, "\n")
}

type tally struct {
	completed int
	disputed  int
	refunded  int
	active    int
	value     *big.Int
}

func (t *tally) settled() int {
	return t.completed + t.disputed + t.refunded
}

// trustScore computes the 0-100 score from both sides of an address's
// history:
//
//	completion rate        0-70 points
//	volume (log2)          0-20 points
//	dispute rate           -0.5 per percentage point
//	cumulative value (log10) 0-10 points
//
// No history means no trust: zero, not a neutral midpoint.
func trustScore(worker, requestor tally) int {
	total := worker.settled() + requestor.settled()
	if total == 0 {
		return 0
	}
	completed := worker.completed + requestor.completed
	disputed := worker.disputed + requestor.disputed

	score := float64(completed) / float64(total) * 70
	score += math.Min(20, math.Log2(float64(total)+1)*5)
	score -= float64(disputed) / float64(total) * 100 * 0.5

	totalValue := new(big.Int).Add(worker.value, requestor.value)
	value, _ := strconv.ParseFloat(chain.FormatUnits(totalValue, 6), 64)
	score += math.Min(10, math.Log10(value+1)*5)

	return int(math.Max(0, math.Min(100, math.Round(score))))
}

func rate(n, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}
