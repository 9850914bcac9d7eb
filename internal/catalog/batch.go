package catalog

// DefaultPageSize is the number of items submitted per action call.
const DefaultPageSize = 100

// Batch is a contiguous half-open range [Start, End) of the item set.
type Batch struct {
	Index int
	Start int
	End   int
}

// Size returns the number of items in the batch.
func (b Batch) Size() int { return b.End - b.Start }

// Partition splits n items into ceil(n/page) consecutive batches of at most
// page items each, in original order. A non-positive page uses DefaultPageSize.
func Partition(n, page int) []Batch {
	if page <= 0 {
		page = DefaultPageSize
	}
	if n <= 0 {
		return nil
	}
	batches := make([]Batch, 0, (n+page-1)/page)
	for start := 0; start < n; start += page {
		end := min(start+page, n)
		batches = append(batches, Batch{Index: len(batches), Start: start, End: end})
	}
	return batches
}
