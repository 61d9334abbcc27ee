package flowfilter

import (
	"sort"
	"strings"
)

// FlowFilterList is an immutable list of flow filters sorted by index.
// Every update returns a new list so that evaluation in progress keeps
// seeing the list it started with. A nil list is empty.
type FlowFilterList struct {
	filters []*FlowFilter
}

// NewFlowFilterList creates a list from filters given in any order.
func NewFlowFilterList(filters ...*FlowFilter) (*FlowFilterList, error) {
	seen := make(map[int]bool)
	sorted := make([]*FlowFilter, 0, len(filters))
	for _, f := range filters {
		if f == nil {
			return nil, errNullFilter
		}
		if seen[f.index] {
			return nil, badRequest("duplicate flow filter index: %d", f.index)
		}
		seen[f.index] = true
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].index < sorted[j].index
	})
	return &FlowFilterList{filters: sorted}, nil
}

func (l *FlowFilterList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.filters)
}

func (l *FlowFilterList) find(index int) (int, bool) {
	if l == nil {
		return 0, false
	}
	i := sort.Search(len(l.filters), func(i int) bool {
		return l.filters[i].index >= index
	})
	return i, i < len(l.filters) && l.filters[i].index == index
}

// Get returns the filter with the given index, or nil.
func (l *FlowFilterList) Get(index int) *FlowFilter {
	if i, ok := l.find(index); ok {
		return l.filters[i]
	}
	return nil
}

// Filters returns the filters in evaluation order.
func (l *FlowFilterList) Filters() []*FlowFilter {
	if l == nil {
		return nil
	}
	filters := make([]*FlowFilter, len(l.filters))
	copy(filters, l.filters)
	return filters
}

func (l *FlowFilterList) insert(pos int, f *FlowFilter, replace bool) *FlowFilterList {
	n := l.Len()
	filters := make([]*FlowFilter, 0, n+1)
	if l != nil {
		filters = append(filters, l.filters[:pos]...)
	}
	filters = append(filters, f)
	if l != nil {
		if replace {
			pos++
		}
		filters = append(filters, l.filters[pos:]...)
	}
	return &FlowFilterList{filters: filters}
}

// Add returns a new list with f added. It fails if the index is in use.
func (l *FlowFilterList) Add(f *FlowFilter) (*FlowFilterList, error) {
	if f == nil {
		return nil, errNullFilter
	}
	pos, found := l.find(f.index)
	if found {
		return nil, badRequest("duplicate flow filter index: %d", f.index)
	}
	return l.insert(pos, f, false), nil
}

// Put returns a new list with f added, replacing the filter that has the
// same index if any.
func (l *FlowFilterList) Put(f *FlowFilter) (*FlowFilterList, error) {
	if f == nil {
		return nil, errNullFilter
	}
	pos, found := l.find(f.index)
	return l.insert(pos, f, found), nil
}

// Remove returns a new list without the filter with the given index, and
// false if there was no such filter.
func (l *FlowFilterList) Remove(index int) (*FlowFilterList, bool) {
	pos, found := l.find(index)
	if !found {
		return l, false
	}
	filters := make([]*FlowFilter, 0, len(l.filters)-1)
	filters = append(filters, l.filters[:pos]...)
	filters = append(filters, l.filters[pos+1:]...)
	return &FlowFilterList{filters: filters}, true
}

func (l *FlowFilterList) String() string {
	names := make([]string, 0, l.Len())
	for _, f := range l.Filters() {
		names = append(names, f.String())
	}
	return "[" + strings.Join(names, ", ") + "]"
}
