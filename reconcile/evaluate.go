package reconcile

// Evaluate decides aggregate readiness for one dependent item given the
// status labels of its resolved dependencies. Ready iff the set is non-empty
// and every label satisfies the rules; an empty set is never ready, so items
// with no recorded dependencies are never fast-forwarded. Missing
// dependencies are passed in as empty labels and count against readiness.
//
// Pure: no I/O, deterministic for a given label multiset.
func (r Rules) Evaluate(labels []string) Evaluation {
	eval := Evaluation{TotalCount: len(labels)}
	for _, label := range labels {
		if r.satisfies(label) {
			eval.ReadyCount++
		}
	}
	eval.Ready = eval.TotalCount > 0 && eval.ReadyCount == eval.TotalCount
	return eval
}
