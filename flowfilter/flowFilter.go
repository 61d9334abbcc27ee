/***
Copyright 2014 Cisco Systems Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package flowfilter

import (
	"fmt"
	"strings"
)

const (
	MinFilterIndex = 0
	MaxFilterIndex = 65535
)

// FilterType is the type of a flow filter.
type FilterType int

const (
	// Apply actions and continue evaluation.
	PassFilter FilterType = iota
	// Apply actions and discard the packet.
	DropFilter
	// Apply actions and forward the packet to another interface.
	RedirectFilter
)

var filterTypeNames = []string{"pass", "drop", "redirect"}

func (t FilterType) String() string {
	if t >= 0 && int(t) < len(filterTypeNames) {
		return filterTypeNames[t]
	}
	return "unknown"
}

// MulticastSupported returns true if filters of this type are evaluated
// against packets sent to a multicast or broadcast address.
func (t FilterType) MulticastSupported() bool {
	return t != RedirectFilter
}

func ParseFilterType(s string) (FilterType, error) {
	for i, name := range filterTypeNames {
		if strings.EqualFold(s, name) {
			return FilterType(i), nil
		}
	}
	return 0, badRequest("unknown flow filter type: %q", s)
}

// Direction of the packets a filter list applies to.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}
	return "in"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "in", "input":
		return DirectionIn, nil
	case "out", "output":
		return DirectionOut, nil
	}
	return 0, badRequest("unknown flow filter direction: %q", s)
}

// RedirectDestination is the interface a redirect filter sends packets to.
type RedirectDestination struct {
	Interface string
	Direction Direction
}

func (d RedirectDestination) String() string {
	return fmt.Sprintf("%s/%s", d.Interface, d.Direction)
}

// FlowFilter is an immutable entry of a flow filter list.
type FlowFilter struct {
	index      int
	condition  string
	filterType FilterType
	actions    []FieldAction
	redirect   *RedirectDestination
}

func newFlowFilter(index int, condition string, ftype FilterType, actions []FieldAction) (*FlowFilter, error) {
	if index < MinFilterIndex || index > MaxFilterIndex {
		return nil, badRequest("invalid flow filter index: %d", index)
	}
	if condition == "" {
		return nil, badRequest("flow filter %d: condition name cannot be empty", index)
	}
	acts := make([]FieldAction, 0, len(actions))
	for _, act := range actions {
		if act == nil {
			return nil, errNullAction
		}
		acts = append(acts, act)
	}
	return &FlowFilter{
		index:      index,
		condition:  condition,
		filterType: ftype,
		actions:    acts,
	}, nil
}

// NewPassFilter creates a filter that applies actions to matching packets.
func NewPassFilter(index int, condition string, actions ...FieldAction) (*FlowFilter, error) {
	return newFlowFilter(index, condition, PassFilter, actions)
}

// NewDropFilter creates a filter that discards matching packets.
func NewDropFilter(index int, condition string, actions ...FieldAction) (*FlowFilter, error) {
	return newFlowFilter(index, condition, DropFilter, actions)
}

// NewRedirectFilter creates a filter that forwards matching packets to
// dest.
func NewRedirectFilter(index int, condition string, dest RedirectDestination, actions ...FieldAction) (*FlowFilter, error) {
	if dest.Interface == "" {
		return nil, badRequest("flow filter %d: redirect destination cannot be empty", index)
	}
	f, err := newFlowFilter(index, condition, RedirectFilter, actions)
	if err != nil {
		return nil, err
	}
	f.redirect = &dest
	return f, nil
}

func (f *FlowFilter) Index() int {
	return f.index
}

func (f *FlowFilter) Condition() string {
	return f.condition
}

func (f *FlowFilter) Type() FilterType {
	return f.filterType
}

func (f *FlowFilter) Actions() []FieldAction {
	acts := make([]FieldAction, len(f.actions))
	copy(acts, f.actions)
	return acts
}

// Redirect returns the destination of a redirect filter, nil otherwise.
func (f *FlowFilter) Redirect() *RedirectDestination {
	if f.redirect == nil {
		return nil
	}
	d := *f.redirect
	return &d
}

func (f *FlowFilter) Equal(other *FlowFilter) bool {
	if other == nil {
		return false
	}
	if f.index != other.index || f.condition != other.condition ||
		f.filterType != other.filterType || len(f.actions) != len(other.actions) {
		return false
	}
	if (f.redirect == nil) != (other.redirect == nil) ||
		(f.redirect != nil && *f.redirect != *other.redirect) {
		return false
	}
	for i, act := range f.actions {
		if !act.Equal(other.actions[i]) {
			return false
		}
	}
	return true
}

func (f *FlowFilter) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s:%s", f.index, f.filterType, f.condition)
	if f.redirect != nil {
		fmt.Fprintf(&b, "->%s", f.redirect)
	}
	if len(f.actions) > 0 {
		names := make([]string, len(f.actions))
		for i, act := range f.actions {
			names[i] = act.String()
		}
		fmt.Fprintf(&b, "[%s]", strings.Join(names, ","))
	}
	return b.String()
}

// apply runs the filter actions in order. Actions whose target header is
// missing are skipped.
func (f *FlowFilter) apply(pctx *PacketContext, metrics *Metrics) {
	for _, act := range f.actions {
		if act.Apply(pctx) {
			metrics.actionApplied(act.Kind())
		}
	}
}
