package utils

// Keep compacts items in place to the elements keep accepts, preserving
// order. Slots past the result are zeroed.
func Keep[T any](items []T, keep func(T) bool) []T {
	n := 0
	for _, item := range items {
		if keep(item) {
			items[n] = item
			n++
		}
	}
	clear(items[n:])
	return items[:n]
}
