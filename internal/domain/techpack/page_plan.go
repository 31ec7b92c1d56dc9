package techpack

// PaginationRules holds the maximum number of items of each block type per page.
// Colorways are paginated by swatch count.
type PaginationRules struct {
	BOMRowsPerPage             int `json:"bom_rows_per_page"`
	MeasurementRowsPerPage     int `json:"measurement_rows_per_page"`
	ConstructionEntriesPerPage int `json:"construction_entries_per_page"`
	ColorwaysPerPage           int `json:"colorways_per_page"`
	NoteBlocksPerPage          int `json:"note_blocks_per_page"`
}

// DefaultPaginationRules returns the standard thresholds
func DefaultPaginationRules() PaginationRules {
	return PaginationRules{
		BOMRowsPerPage:             10,
		MeasurementRowsPerPage:     20,
		ConstructionEntriesPerPage: 8,
		ColorwaysPerPage:           4,
		NoteBlocksPerPage:          1,
	}
}

// withDefaults replaces non-positive thresholds with the defaults
func (r PaginationRules) withDefaults() PaginationRules {
	d := DefaultPaginationRules()
	if r.BOMRowsPerPage <= 0 {
		r.BOMRowsPerPage = d.BOMRowsPerPage
	}
	if r.MeasurementRowsPerPage <= 0 {
		r.MeasurementRowsPerPage = d.MeasurementRowsPerPage
	}
	if r.ConstructionEntriesPerPage <= 0 {
		r.ConstructionEntriesPerPage = d.ConstructionEntriesPerPage
	}
	if r.ColorwaysPerPage <= 0 {
		r.ColorwaysPerPage = d.ColorwaysPerPage
	}
	if r.NoteBlocksPerPage <= 0 {
		r.NoteBlocksPerPage = d.NoteBlocksPerPage
	}
	return r
}

// Threshold returns the items-per-page limit for a block type
func (r PaginationRules) Threshold(block BlockType) int {
	switch block {
	case BlockBOM:
		return r.BOMRowsPerPage
	case BlockMeasurements:
		return r.MeasurementRowsPerPage
	case BlockConstruction:
		return r.ConstructionEntriesPerPage
	case BlockColorways:
		return r.ColorwaysPerPage
	case BlockPackingNotes:
		return r.NoteBlocksPerPage
	}
	return 1
}

// PageEntry describes one logical page: which block it renders and
// the half-open item range [Start, End) of that block.
type PageEntry struct {
	PageIndex int       `json:"page_index"`
	Block     BlockType `json:"block"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
}

// Len returns the number of block items on the page
func (p PageEntry) Len() int {
	return p.End - p.Start
}

// PagePlan is the ordered pagination of one snapshot
type PagePlan struct {
	DocumentID     string      `json:"document_id"`
	ContentVersion string      `json:"content_version"`
	Pages          []PageEntry `json:"pages"`
}

// Len returns the total number of pages
func (p *PagePlan) Len() int {
	return len(p.Pages)
}

// Page returns the entry at a 0-based index
func (p *PagePlan) Page(index int) (PageEntry, bool) {
	if index < 0 || index >= len(p.Pages) {
		return PageEntry{}, false
	}
	return p.Pages[index], true
}

// CountByBlock returns the number of pages each present block occupies
func (p *PagePlan) CountByBlock() map[BlockType]int {
	counts := make(map[BlockType]int)
	for _, page := range p.Pages {
		counts[page.Block]++
	}
	return counts
}

// PagePlanner turns a snapshot into a page plan
type PagePlanner struct {
	rules PaginationRules
}

// NewPagePlanner creates a planner with the given thresholds
func NewPagePlanner(rules PaginationRules) *PagePlanner {
	return &PagePlanner{rules: rules.withDefaults()}
}

// Rules returns the effective thresholds
func (p *PagePlanner) Rules() PaginationRules {
	return p.rules
}

// Plan paginates the snapshot. The header is always page 1 alone,
// every other block is split into ceil(n/threshold) pages of its own
// and empty blocks are omitted. The only failure is a malformed snapshot.
func (p *PagePlanner) Plan(s *Snapshot) (*PagePlan, error) {
	if s == nil {
		return nil, &InvalidSnapshotError{Problems: []string{"snapshot is nil"}}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	plan := &PagePlan{
		DocumentID:     s.DocumentID,
		ContentVersion: s.ContentVersion,
		Pages:          make([]PageEntry, 0, p.EstimatePages(s)),
	}
	plan.Pages = append(plan.Pages, PageEntry{PageIndex: 0, Block: BlockHeader, Start: 0, End: 1})

	for _, block := range AllBlockTypes()[1:] {
		n := s.BlockLen(block)
		limit := p.rules.Threshold(block)
		for start := 0; start < n; start += limit {
			end := min(start+limit, n)
			plan.Pages = append(plan.Pages, PageEntry{
				PageIndex: len(plan.Pages),
				Block:     block,
				Start:     start,
				End:       end,
			})
		}
	}
	return plan, nil
}

// EstimatePages returns the page count Plan would produce without
// validating the snapshot or building the plan.
func (p *PagePlanner) EstimatePages(s *Snapshot) int {
	if s == nil {
		return 0
	}
	total := 1
	for _, block := range AllBlockTypes()[1:] {
		total += ceilDiv(s.BlockLen(block), p.rules.Threshold(block))
	}
	return total
}

// EstimateByBlock returns the page count of each non-empty block without
// validating the snapshot
func (p *PagePlanner) EstimateByBlock(s *Snapshot) map[BlockType]int {
	counts := make(map[BlockType]int)
	if s == nil {
		return counts
	}
	counts[BlockHeader] = 1
	for _, block := range AllBlockTypes()[1:] {
		if n := ceilDiv(s.BlockLen(block), p.rules.Threshold(block)); n > 0 {
			counts[block] = n
		}
	}
	return counts
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
