package resource

import "sort"

// Range is a dirty byte span within a buffer.
type Range struct {
	Off int
	Len int
}

// End returns the exclusive end offset.
func (r Range) End() int { return r.Off + r.Len }

// Coalesce merges overlapping and adjacent ranges into the minimal
// sorted set. The input slice may be reordered in place.
func Coalesce(ranges []Range) []Range {
	if len(ranges) <= 1 {
		return ranges
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Off < ranges[j].Off })
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.Off <= last.End() {
			if r.End() > last.End() {
				last.Len = r.End() - last.Off
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
