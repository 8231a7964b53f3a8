// Package routing implements the capability-based router (C6): scores and
// ranks agent accounts for a required skill set, workload-aware. The
// tiered scoring/fallback shape follows the teacher's deterministic
// role-detection cascade, generalized here into a six-component weighted
// score.
package routing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agenthub/hub/internal/types"
)

// RankOptions narrows candidates and biases the ranking.
type RankOptions struct {
	ExcludeAccounts map[string]struct{}
	Priority        string
	Workload        map[string]types.WorkloadSnapshot

	// Now fixes the clock used for the recency component. Zero means
	// time.Now(), the default for every real caller; tests set it to get a
	// deterministic minutes-since-lastActive.
	Now time.Time
}

// Score computes a capability's fit for requiredSkills. workloadModifier is
// added last and may be negative; the result is clamped to >= 0. now is the
// clock the recency component measures LastActiveAt against.
func Score(cap types.CapabilityRecord, requiredSkills []string, workloadModifier int, now time.Time) types.ScoreResult {
	var reasons []string
	total := 0

	skillPts := skillMatch(cap, requiredSkills)
	total += skillPts
	reasons = append(reasons, reasonf("skill match", skillPts, 30))

	successPts := successRate(cap)
	total += successPts
	reasons = append(reasons, reasonf("success rate", successPts, 25))

	providerPts := providerFit(cap, requiredSkills)
	total += providerPts
	reasons = append(reasons, reasonf("provider fit", providerPts, 20))

	speedPts := speed(cap)
	total += speedPts
	reasons = append(reasons, reasonf("speed", speedPts, 10))

	trustPts := trust(cap)
	total += trustPts
	reasons = append(reasons, reasonf("trust", trustPts, 10))

	recencyPts := recency(cap, now)
	total += recencyPts
	reasons = append(reasons, reasonf("recency", recencyPts, 5))

	total += workloadModifier
	if total < 0 {
		total = 0
	}

	return types.ScoreResult{AccountName: cap.AccountName, Score: total, Reasons: reasons}
}

func reasonf(label string, points, max int) string {
	return fmt.Sprintf("%s (%d/%d)", label, points, max)
}

func skillMatch(cap types.CapabilityRecord, required []string) int {
	if len(required) == 0 {
		return 30
	}
	have := toSet(cap.Skills)
	matching := 0
	for _, s := range required {
		if _, ok := have[s]; ok {
			matching++
		}
	}
	return roundInt(30 * float64(matching) / float64(len(required)))
}

func successRate(cap types.CapabilityRecord) int {
	if cap.TotalTasks == 0 {
		return 13
	}
	return roundInt(25 * float64(cap.AcceptedTasks) / float64(cap.TotalTasks))
}

func providerFit(cap types.CapabilityRecord, required []string) int {
	if len(required) == 0 || len(cap.ProviderStrengths) == 0 {
		return 10
	}
	strengths := toSet(cap.ProviderStrengths)
	matching := 0
	for _, s := range required {
		if _, ok := strengths[s]; ok {
			matching++
		}
	}
	return roundInt(20 * float64(matching) / float64(len(required)))
}

func speed(cap types.CapabilityRecord) int {
	if cap.AvgDeliveryMs <= 0 {
		return 5
	}
	minutes := cap.AvgDeliveryMs / 60000.0
	switch {
	case minutes < 5:
		return 10
	case minutes < 15:
		return 8
	case minutes < 30:
		return 5
	default:
		return 2
	}
}

func trust(cap types.CapabilityRecord) int {
	if cap.TrustScore == nil {
		return 5
	}
	return roundInt(10 * *cap.TrustScore / 100)
}

func recency(cap types.CapabilityRecord, now time.Time) int {
	if cap.LastActiveAt == 0 {
		return 1
	}
	minutes := now.Sub(time.UnixMilli(cap.LastActiveAt)).Minutes()
	return RecencyFromMinutes(minutes)
}

// RecencyFromMinutes bands minutes-since-lastActive per §4.6. recency calls
// this directly; it is also exported for callers that already have a
// minutes value on hand.
func RecencyFromMinutes(minutes float64) int {
	switch {
	case minutes <= 10:
		return 5
	case minutes <= 30:
		return 4
	case minutes <= 60:
		return 2
	default:
		return 1
	}
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, i := range items {
		m[i] = struct{}{}
	}
	return m
}

func roundInt(f float64) int {
	return int(math.Round(f))
}

// WorkloadModifier derives the workload penalty/bonus for one account from
// its snapshot, per §4.6.
func WorkloadModifier(w types.WorkloadSnapshot) int {
	wipPenalty := clampInt(-5*w.WIPCount, -15, 0)
	openPenalty := clampInt(-2*w.OpenCount, -10, 0)
	throughputBonus := clampInt(5*w.RecentThroughput, 0, 15)
	return wipPenalty + openPenalty + throughputBonus
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Rank filters excluded accounts, scores the rest, and sorts descending by
// score, ties broken by input order (stable sort).
func Rank(candidates []types.CapabilityRecord, requiredSkills []string, opts RankOptions) []types.ScoreResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	results := make([]types.ScoreResult, 0, len(candidates))
	for _, c := range candidates {
		if opts.ExcludeAccounts != nil {
			if _, excluded := opts.ExcludeAccounts[c.AccountName]; excluded {
				continue
			}
		}
		modifier := 0
		if opts.Workload != nil {
			if w, ok := opts.Workload[c.AccountName]; ok {
				modifier = WorkloadModifier(w)
			}
		}
		results = append(results, Score(c, requiredSkills, modifier, now))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
