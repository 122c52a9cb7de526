// Package partition splits discovered links into contiguous chunks,
// one per worker. The allocation is static; workers never rebalance.
package partition

// Split divides items into n ordered groups covering every item
// exactly once. Group sizes differ by at most one; the first
// len(items) % n groups carry the extra item. n < 1 is treated as 1.
func Split[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}

	size := len(items) / n
	rest := len(items) % n

	groups := make([][]T, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rest {
			end++
		}
		groups = append(groups, items[start:end])
		start = end
	}
	return groups
}
