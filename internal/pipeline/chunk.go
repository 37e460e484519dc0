package pipeline

// Chunk is a contiguous half-open slice [Start, End) of the pending record
// array, assigned to exactly one worker.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the number of records in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// Chunk sizing grows with total record count so large imports avoid
// per-chunk overhead while small imports still spread across the pool.
const (
	baseChunkSize = 250

	chunkTier1Threshold = 10_000
	chunkTier1Size      = 500
	chunkTier2Threshold = 50_000
	chunkTier2Size      = 1_000
	chunkTier3Threshold = 200_000
	chunkTier3Size      = 2_500
)

// ChunkSize returns the adaptive chunk size for a given total record count
// and worker count. Small inputs target roughly two chunks per worker.
func ChunkSize(total, workers int) int {
	if workers < 1 {
		workers = 1
	}
	switch {
	case total >= chunkTier3Threshold:
		return chunkTier3Size
	case total >= chunkTier2Threshold:
		return chunkTier2Size
	case total >= chunkTier1Threshold:
		return chunkTier1Size
	}

	if target := (total + 2*workers - 1) / (2 * workers); target < baseChunkSize {
		if target < 1 {
			return 1
		}
		return target
	}
	return baseChunkSize
}

// Partition splits total records into contiguous, disjoint chunks whose
// sizes sum to exactly total.
func Partition(total, workers int) []Chunk {
	if total <= 0 {
		return nil
	}
	size := ChunkSize(total, workers)

	chunks := make([]Chunk, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
	}
	return chunks
}
