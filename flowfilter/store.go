package flowfilter

import (
	"fmt"
	"sync"

	cmap "github.com/streamrail/concurrent-map"
	log "github.com/sirupsen/logrus"
)

// FilterKey identifies the filter list of one interface and direction.
type FilterKey struct {
	Interface string
	Direction Direction
}

func (k FilterKey) String() string {
	return fmt.Sprintf("%s/%s", k.Interface, k.Direction)
}

// UpdateListener is notified after the filter list of an interface has
// been replaced. list is nil if the list has been cleared.
type UpdateListener interface {
	FilterListUpdated(key FilterKey, list *FlowFilterList)
}

// FilterStore keeps the current filter list of every interface. Readers
// get immutable snapshots without locking. Updates are serialized and each
// one swaps in a new snapshot.
type FilterStore struct {
	lists     cmap.ConcurrentMap // FilterKey.String() -> *FlowFilterList
	mutex     sync.Mutex         // Serializes updates
	listeners []UpdateListener
}

func NewFilterStore() *FilterStore {
	return &FilterStore{lists: cmap.New()}
}

// AddListener registers a listener. It must be called before the store is
// updated concurrently.
func (s *FilterStore) AddListener(l UpdateListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.listeners = append(s.listeners, l)
}

// FilterListFor returns the current filter list, or nil.
func (s *FilterStore) FilterListFor(iface string, dir Direction) *FlowFilterList {
	if v, ok := s.lists.Get(FilterKey{iface, dir}.String()); ok {
		return v.(*FlowFilterList)
	}
	return nil
}

// Count returns the number of configured filter lists.
func (s *FilterStore) Count() int {
	return s.lists.Count()
}

func (s *FilterStore) get(key FilterKey) *FlowFilterList {
	return s.FilterListFor(key.Interface, key.Direction)
}

// swap installs list. It must be called with the mutex held.
func (s *FilterStore) swap(key FilterKey, list *FlowFilterList) {
	if list.Len() == 0 {
		s.lists.Remove(key.String())
		list = nil
	} else {
		s.lists.Set(key.String(), list)
	}
	log.Debugf("Flow filter list updated: %s: %s", key, list)
	for _, l := range s.listeners {
		l.FilterListUpdated(key, list)
	}
}

// AddFilter adds f to the list of key. It fails if the index is in use.
func (s *FilterStore) AddFilter(key FilterKey, f *FlowFilter) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	list, err := s.get(key).Add(f)
	if err != nil {
		return err
	}
	s.swap(key, list)
	return nil
}

// PutFilter adds f to the list of key, replacing the filter that has the
// same index.
func (s *FilterStore) PutFilter(key FilterKey, f *FlowFilter) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	list, err := s.get(key).Put(f)
	if err != nil {
		return err
	}
	s.swap(key, list)
	return nil
}

// RemoveFilter removes the filter with the given index. false is returned
// if there was no such filter.
func (s *FilterStore) RemoveFilter(key FilterKey, index int) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	list, removed := s.get(key).Remove(index)
	if removed {
		s.swap(key, list)
	}
	return removed
}

// SetFilterList replaces the whole list of key.
func (s *FilterStore) SetFilterList(key FilterKey, list *FlowFilterList) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.swap(key, list)
}

func (s *FilterStore) ClearFilterList(key FilterKey) {
	s.SetFilterList(key, nil)
}

// ConditionStore keeps flow conditions by name.
type ConditionStore struct {
	conditions cmap.ConcurrentMap
}

func NewConditionStore() *ConditionStore {
	return &ConditionStore{conditions: cmap.New()}
}

// PutCondition adds or replaces a condition.
func (s *ConditionStore) PutCondition(c *FlowCondition) error {
	if c == nil {
		return errNullCondition
	}
	s.conditions.Set(c.Name(), c)
	return nil
}

func (s *ConditionStore) RemoveCondition(name string) {
	s.conditions.Remove(name)
}

// Conditions returns every condition, keyed by name.
func (s *ConditionStore) Conditions() map[string]*FlowCondition {
	conds := make(map[string]*FlowCondition)
	for name, v := range s.conditions.Items() {
		conds[name] = v.(*FlowCondition)
	}
	return conds
}

func (s *ConditionStore) ResolveCondition(name string) (*FlowCondition, error) {
	if v, ok := s.conditions.Get(name); ok {
		return v.(*FlowCondition), nil
	}
	return nil, badRequest("flow condition not found: %q", name)
}
