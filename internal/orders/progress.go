package orders

// Progress is a pure function over a loaded order's counters: sent-to-
// purchase alone never advances it, while not-sent does, because the
// decision is considered final.
func Progress(itemsCount, itemsSeparated, itemsNotSent int) float64 {
	if itemsCount == 0 {
		return 0.0
	}
	processed := itemsSeparated + itemsNotSent
	return float64(processed) / float64(itemsCount) * 100
}

// ProgressPercentage computes the progress of a loaded Order.
func ProgressPercentage(o *Order) float64 {
	return Progress(o.ItemsCount, o.ItemsSeparated, o.ItemsNotSent)
}

// IsComplete mirrors the order-level completion predicate: all items
// accounted for as separated or not-sent, and at least one item exists.
func IsComplete(itemsCount, itemsSeparated, itemsNotSent int) bool {
	return itemsCount > 0 && itemsSeparated+itemsNotSent == itemsCount
}
