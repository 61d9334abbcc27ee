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

// This file implements the evaluation of a flow filter list against one
// packet.

import (
	log "github.com/sirupsen/logrus"
)

// Verdict is the terminal state of a filter list evaluation.
type Verdict int

const (
	PassedThrough Verdict = iota
	Dropped
	Redirected
)

func (v Verdict) String() string {
	switch v {
	case Dropped:
		return "dropped"
	case Redirected:
		return "redirected"
	}
	return "passed"
}

// Outcome is the result of a filter list evaluation.
type Outcome struct {
	Verdict Verdict
	// Index of the filter that ended the evaluation, -1 if the packet
	// passed through.
	FilterIndex int
	// Packet description of a dropped packet. Empty if the packet was a
	// flooded replica.
	Description string
	// Destination of a redirected packet.
	Redirect *RedirectDestination
}

// PacketDescriber builds the human readable description of a dropped packet.
type PacketDescriber interface {
	Describe(pctx *PacketContext) string
}

// DescriberFunc adapts a function to PacketDescriber.
type DescriberFunc func(pctx *PacketContext) string

func (f DescriberFunc) Describe(pctx *PacketContext) string {
	return f(pctx)
}

var defaultDescriber = DescriberFunc(func(pctx *PacketContext) string {
	return pctx.Description()
})

// ConditionResolver looks up flow conditions by name.
type ConditionResolver interface {
	ResolveCondition(name string) (*FlowCondition, error)
}

// FilterListProvider returns the current filter list of an interface.
type FilterListProvider interface {
	FilterListFor(iface string, dir Direction) *FlowFilterList
}

// Pipeline evaluates flow filter lists. It keeps no per-packet state and
// may be used by many goroutines at once.
type Pipeline struct {
	conditions ConditionResolver
	lists      FilterListProvider
	describer  PacketDescriber
	metrics    *Metrics
}

type PipelineOption func(*Pipeline)

// WithDescriber replaces the describer used for dropped packets.
func WithDescriber(d PacketDescriber) PipelineOption {
	return func(p *Pipeline) {
		p.describer = d
	}
}

func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithFilterLists sets the provider used by Evaluate.
func WithFilterLists(lists FilterListProvider) PipelineOption {
	return func(p *Pipeline) {
		p.lists = lists
	}
}

func NewPipeline(conditions ConditionResolver, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		conditions: conditions,
		describer:  defaultDescriber,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the filter list configured for iface and dir. A packet
// passes through if no list is configured.
func (p *Pipeline) Evaluate(iface string, dir Direction, pctx *PacketContext) Outcome {
	var list *FlowFilterList
	if p.lists != nil {
		list = p.lists.FilterListFor(iface, dir)
	}
	return p.EvaluateList(list, pctx)
}

// EvaluateList runs the filters of list in ascending index order.
func (p *Pipeline) EvaluateList(list *FlowFilterList, pctx *PacketContext) Outcome {
	out := p.evaluate(list, pctx)
	p.metrics.packetEvaluated(out.Verdict)
	return out
}

func (p *Pipeline) evaluate(list *FlowFilterList, pctx *PacketContext) Outcome {
	if list == nil {
		return Outcome{Verdict: PassedThrough, FilterIndex: -1}
	}

	for _, f := range list.filters {
		if !f.filterType.MulticastSupported() {
			// The result depends on the destination address.
			pctx.AddMatchField(MatchDlDst)
			if pctx.IsMulticast() {
				log.Debugf("Skip flow filter %d for multicast packet", f.index)
				continue
			}
		}

		cond, err := p.conditions.ResolveCondition(f.condition)
		if err != nil {
			log.Warnf("Flow filter %d: %v", f.index, err)
			continue
		}
		if !cond.Match(pctx) {
			continue
		}

		f.apply(pctx, p.metrics)

		switch f.filterType {
		case DropFilter:
			return p.drop(f, pctx)
		case RedirectFilter:
			log.Debugf("Packet redirected by flow filter %d: %s", f.index, f.redirect)
			return Outcome{
				Verdict:     Redirected,
				FilterIndex: f.index,
				Redirect:    f.Redirect(),
			}
		}
	}
	return Outcome{Verdict: PassedThrough, FilterIndex: -1}
}

func (p *Pipeline) drop(f *FlowFilter, pctx *PacketContext) Outcome {
	out := Outcome{Verdict: Dropped, FilterIndex: f.index}
	if pctx.IsFlooding() {
		log.Debugf("Flooded packet discarded by flow filter %d: in_port=%d", f.index, pctx.InPort())
		return out
	}

	out.Description = p.describer.Describe(pctx)
	log.Infof("Packet discarded by flow filter %d: %s", f.index, out.Description)
	return out
}
