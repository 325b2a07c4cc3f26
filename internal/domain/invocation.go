package domain

// InvocationCount is one component's share of an invocation plan: how
// many additional direct invocations to issue for it this round.
type InvocationCount struct {
	Name  string
	Count int
}

// InvocationPlan is the output of the Invocation Plan Splitter
// (spec.md §4.8): counts to dispatch locally, plus bins of counts to
// hand off to remote Invoker instances.
type InvocationPlan struct {
	Local  []InvocationCount
	Remote [][]InvocationCount
}

// TotalLocal sums the counts placed in Local.
func (p InvocationPlan) TotalLocal() int {
	total := 0
	for _, c := range p.Local {
		total += c.Count
	}
	return total
}

// ComponentStatus is one component's measured state for this
// coordinator pass (spec.md §4.7 step 3). Concurrency and
// QueuedMessages are pointers so a failed individual measurement can be
// left nil without losing the rest of the status snapshot.
type ComponentStatus struct {
	Name           string
	Concurrency    *int
	QueuedMessages *int
	MaxConcurrency int
}

// ApplicationStatus is the full measurement pass: one ComponentStatus
// per declared component, including internal ones.
type ApplicationStatus struct {
	Components []ComponentStatus
}
