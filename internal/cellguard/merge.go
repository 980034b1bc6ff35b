package cellguard

// MergeMap maps any member of a merged region to the region's anchor
// (top-left) cell. Built once per scratch sheet from the engine's merge list,
// then consulted as a pure lookup so the guard never depends on the engine.
type MergeMap struct {
	regions []Range
}

// NewMergeMap builds a MergeMap from merged regions. Single-cell regions are
// dropped since they anchor to themselves.
func NewMergeMap(regions []Range) MergeMap {
	kept := make([]Range, 0, len(regions))
	for _, r := range regions {
		if r.Start != r.End {
			kept = append(kept, r)
		}
	}
	return MergeMap{regions: kept}
}

// Anchor returns the anchor cell for c and whether c belongs to a merged
// region. Cells outside every region anchor to themselves.
func (m MergeMap) Anchor(c Cell) (Cell, bool) {
	for _, r := range m.regions {
		if r.Contains(c) {
			return r.Start, true
		}
	}
	return c, false
}

// Len returns the number of merged regions.
func (m MergeMap) Len() int {
	return len(m.regions)
}
