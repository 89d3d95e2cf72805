package store

// pageSize is the unit of dirty tracking and log-based commit (spec §3.3,
// §4.1). Pages are keyed by offset/pageSize*pageSize, not by a dense
// logical index, so that any byte range of the file maps to a page
// without a separate allocation step.
const pageSize = 4096

// page is a 4 KiB region of the file cached in memory. length is
// min(pageSize, logicalSize-offset) and shrinks when the file is
// truncated (spec §4.1); bytes at index >= length were never populated
// and read as zero.
type page struct {
	offset uint64
	length uint64
	data   [pageSize]byte
	dirty  bool
}

func newPage(offset uint64) *page {
	return &page{offset: offset}
}

// pageOffsetOf rounds offset down to its containing page's base offset.
func pageOffsetOf(offset uint64) uint64 {
	return (offset / pageSize) * pageSize
}
