package matcher

// binomial returns C(n, k), saturating at limit+1 once the value exceeds limit
func binomial(n, k int, limit int64) int64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}

	result := int64(1)
	for i := 0; i < k; i++ {
		result = result * int64(n-i) / int64(i+1)
		if result > limit {
			return limit + 1
		}
	}
	return result
}

// forEachCombination calls fn with every k-subset of {0..n-1} in lexicographic
// order. The slice passed to fn is reused; fn returns false to stop early.
// It reports whether the enumeration ran to completion.
func forEachCombination(n, k int, fn func(idx []int) bool) bool {
	if k <= 0 || k > n {
		return true
	}

	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for {
		if !fn(idx) {
			return false
		}

		// advance the rightmost index that still has room
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return true
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
