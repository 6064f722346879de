package parallelsync

import "fmt"

// ctid is a physical row locator: (page, row) per spec.md §4.2's tuple-id paged sync.
type ctid struct {
	block  int64
	offset int64
}

var zeroCtid = ctid{}

func (c ctid) String() string {
	return fmt.Sprintf("(%d,%d)", c.block, c.offset)
}

// encodeCtid/decodeCtid round-trip a ctid through broker.Store's int64 checkpoint value.
// Postgres caps a page's tuple offset well under 2^16 (a heap page is 8KB and the
// smallest possible tuple is far larger than 1/65536th of that), so block<<16|offset
// never collides between two distinct ctids.
func encodeCtid(c ctid) int64 {
	return c.block<<16 | (c.offset & 0xffff)
}

func decodeCtid(v int64) ctid {
	return ctid{block: v >> 16, offset: v & 0xffff}
}

func ctidLiterals(cs []ctid) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
