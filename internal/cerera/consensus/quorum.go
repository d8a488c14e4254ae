package consensus

// Quorum computes the Prepared quorum q and the fault bound f for a
// validator-set size n. Small sets are special-cased: n=1 -> q=1 (no
// Byzantine tolerance needed); n=2,3 -> q=2 (the naive 2*f+1 formula would
// give q=1 there, under-protecting the set).
func Quorum(n int) (q, f int) {
	switch {
	case n <= 1:
		return 1, 0
	case n == 2, n == 3:
		return 2, 0
	default:
		f = (n - 1) / 3
		q = 2*f + 1
		return q, f
	}
}

// CommitQuorum returns the number of distinct Commit envelopes required to
// move an instance from Prepared to Committed: q+1, capped at n because
// the "+1" would otherwise exceed the validator-set size for small n (a
// single-node set must commit with one vote, not two).
func CommitQuorum(n, q int) int {
	th := q + 1
	if th > n {
		th = n
	}
	return th
}
