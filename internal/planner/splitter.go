// Package planner implements the Invocation Plan Splitter (spec.md
// §4.8): it turns a measured ApplicationStatus into an InvocationPlan,
// bin-packing any overflow beyond a single coordinator pass's API
// budget into remote Invoker hand-offs.
//
// Grounded in the teacher's reconciliation batching
// (internal/application/worker/reconciliation.go), which chunks a
// candidate set into fixed-size batches before dispatch; this module
// generalizes that flat chunking into the spec's two-tier local/remote
// bin-packing with oversized-count splitting.
package planner

import (
	"github.com/fluxplane/control-plane/internal/domain"
)

// RawCounts computes each FromMessage component's raw, pre-packing
// invocation count (spec.md §4.8 step 1): headroom = max(0,
// maxConcurrency − concurrency); count = min(queuedMessages, headroom),
// ceil-divided by coordinatorConcurrency so that several coordinators
// running in lock-step each contribute their share without
// under-pursuing queued work.
func RawCounts(status domain.ApplicationStatus, coordinatorConcurrency int) []domain.InvocationCount {
	var out []domain.InvocationCount
	for _, c := range status.Components {
		if c.Concurrency == nil || c.QueuedMessages == nil {
			continue
		}
		headroom := c.MaxConcurrency - *c.Concurrency
		if headroom < 0 {
			headroom = 0
		}
		count := *c.QueuedMessages
		if count > headroom {
			count = headroom
		}
		if count <= 0 {
			continue
		}
		count = ceilDiv(count, coordinatorConcurrency)
		out = append(out, domain.InvocationCount{Name: c.Name, Count: count})
	}
	return out
}

func ceilDiv(n, d int) int {
	if d <= 0 {
		d = 1
	}
	return (n + d - 1) / d
}

// Split packs raw counts into an InvocationPlan per spec.md §4.8's
// packing rule. B is maxInvocationCount, the bound on both a single
// remote bin's total and on the number of local entries relative to
// remaining remote-bin headroom.
func Split(counts []domain.InvocationCount, maxInvocationCount int) domain.InvocationPlan {
	B := maxInvocationCount
	total := sumCounts(counts)
	if total <= B {
		return domain.InvocationPlan{Local: counts}
	}

	var remote [][]domain.InvocationCount
	remaining := append([]domain.InvocationCount(nil), counts...)

	for {
		remainingTotal := sumCounts(remaining)
		if remainingTotal <= B-len(remote) {
			return domain.InvocationPlan{Local: remaining, Remote: remote}
		}
		if len(remote) == B-1 {
			remote = append(remote, remaining)
			return domain.InvocationPlan{Remote: remote}
		}
		bin, rest := fillBin(remaining, B)
		remote = append(remote, bin)
		remaining = rest
	}
}

// fillBin takes exactly B units off the front of remaining, splitting
// an oversized single-component count across the bin boundary, and
// returns the bin plus what's left.
func fillBin(remaining []domain.InvocationCount, size int) ([]domain.InvocationCount, []domain.InvocationCount) {
	bin := make([]domain.InvocationCount, 0, len(remaining))
	rest := make([]domain.InvocationCount, 0, len(remaining))
	budget := size
	for _, c := range remaining {
		switch {
		case budget <= 0:
			rest = append(rest, c)
		case c.Count <= budget:
			bin = append(bin, c)
			budget -= c.Count
		default:
			bin = append(bin, domain.InvocationCount{Name: c.Name, Count: budget})
			rest = append(rest, domain.InvocationCount{Name: c.Name, Count: c.Count - budget})
			budget = 0
		}
	}
	return bin, rest
}

func sumCounts(counts []domain.InvocationCount) int {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total
}
