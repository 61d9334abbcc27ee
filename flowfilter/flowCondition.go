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

// This file implements named flow conditions and the matcher that decides
// whether a packet satisfies them.

import (
	"bytes"
	"net"
	"sort"

	"github.com/contiv/flowfilter/pktcache"
	"github.com/pkg/errors"
)

const (
	minMatchIndex = 1
	maxMatchIndex = 65535
	maxVlanID     = 4095
)

// PortRange matches transport ports From..To. A zero To matches From only.
type PortRange struct {
	From uint16
	To   uint16
}

func (r *PortRange) last() uint16 {
	if r.To == 0 {
		return r.From
	}
	return r.To
}

func (r *PortRange) contains(port uint16) bool {
	return port >= r.From && port <= r.last()
}

// Ethernet header fields to match. nil fields are wildcards.
type EtherMatch struct {
	Src          net.HardwareAddr
	Dst          net.HardwareAddr
	EtherType    *uint16
	VlanID       *uint16 // pktcache.VlanNone matches untagged frames
	VlanPriority *uint8
}

// IPv4 header fields to match.
type Inet4Match struct {
	Src      *net.IPNet
	Dst      *net.IPNet
	Protocol *uint8
	Dscp     *uint8
}

// TCP or UDP ports to match.
type PortMatch struct {
	Src *PortRange
	Dst *PortRange
}

// ICMPv4 fields to match.
type ICMPMatch struct {
	Type *uint8
	Code *uint8
}

// FlowMatch is one entry of a flow condition. Every non-nil clause must
// match. At most one of TCP, UDP and ICMP may be set.
type FlowMatch struct {
	Index  int
	InPort *uint32
	Ether  *EtherMatch
	Inet4  *Inet4Match
	TCP    *PortMatch
	UDP    *PortMatch
	ICMP   *ICMPMatch
}

// FlowCondition is a named list of flow matches. It matches a packet if any
// of its flow matches does, or if it has no flow match at all.
// A FlowCondition must not be modified once it is created.
type FlowCondition struct {
	name    string
	matches []*FlowMatch // Sorted by index
}

// NewFlowCondition validates the given matches and creates a condition.
func NewFlowCondition(name string, matches ...*FlowMatch) (*FlowCondition, error) {
	if name == "" {
		return nil, badRequest("flow condition name cannot be empty")
	}

	indices := make(map[int]bool)
	sorted := make([]*FlowMatch, 0, len(matches))
	for _, m := range matches {
		if m == nil {
			return nil, badRequest("%s: flow match cannot be null", name)
		}
		if err := m.validate(); err != nil {
			return nil, errors.Wrapf(err, "%s: flow match %d", name, m.Index)
		}
		if indices[m.Index] {
			return nil, badRequest("%s: duplicate flow match index: %d", name, m.Index)
		}
		indices[m.Index] = true
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})
	return &FlowCondition{name: name, matches: sorted}, nil
}

func (c *FlowCondition) Name() string {
	return c.name
}

func (c *FlowCondition) Matches() []*FlowMatch {
	m := make([]*FlowMatch, len(c.matches))
	copy(m, c.matches)
	return m
}

// Match returns true if the packet satisfies the condition. Every field
// consulted is recorded in the context, whether it matched or not.
func (c *FlowCondition) Match(pctx *PacketContext) bool {
	if len(c.matches) == 0 {
		return true
	}
	for _, m := range c.matches {
		if m.match(pctx) {
			return true
		}
	}
	return false
}

func (m *FlowMatch) validate() error {
	if m.Index < minMatchIndex || m.Index > maxMatchIndex {
		return badRequest("invalid flow match index: %d", m.Index)
	}
	if em := m.Ether; em != nil {
		for _, mac := range []net.HardwareAddr{em.Src, em.Dst} {
			if mac != nil && len(mac) != 6 {
				return badRequest("invalid MAC address length: %d", len(mac))
			}
		}
		if em.VlanID != nil && *em.VlanID > maxVlanID {
			return badRequest("invalid VLAN ID: %d", *em.VlanID)
		}
		if em.VlanPriority != nil && *em.VlanPriority > maxVlanPcp {
			return badRequest("invalid VLAN priority: %d", *em.VlanPriority)
		}
	}

	var l4Proto *uint8
	nl4 := 0
	if m.TCP != nil {
		nl4++
		l4Proto = protoPtr(6)
	}
	if m.UDP != nil {
		nl4++
		l4Proto = protoPtr(17)
	}
	if m.ICMP != nil {
		nl4++
		l4Proto = protoPtr(1)
	}
	if nl4 > 1 {
		return badRequest("multiple L4 conditions cannot be specified")
	}
	for _, pm := range []*PortMatch{m.TCP, m.UDP} {
		if pm == nil {
			continue
		}
		for _, r := range []*PortRange{pm.Src, pm.Dst} {
			if r != nil && r.To != 0 && r.To < r.From {
				return badRequest("invalid port range: %d-%d", r.From, r.To)
			}
		}
	}

	if im := m.Inet4; im != nil {
		for _, nw := range []*net.IPNet{im.Src, im.Dst} {
			if nw != nil && nw.IP.To4() == nil {
				return badRequest("not an IPv4 network: %s", nw)
			}
		}
		if im.Dscp != nil && *im.Dscp > maxDscp {
			return badRequest("invalid DSCP: %d", *im.Dscp)
		}
		if im.Protocol != nil && l4Proto != nil && *im.Protocol != *l4Proto {
			return badRequest("IP protocol conflicts with L4 condition: %d", *im.Protocol)
		}
	}
	return nil
}

func protoPtr(p uint8) *uint8 {
	return &p
}

func (m *FlowMatch) match(pctx *PacketContext) bool {
	if m.InPort != nil {
		pctx.AddMatchField(MatchInPort)
		if pctx.InPort() != *m.InPort {
			return false
		}
	}
	if m.Ether != nil && !m.Ether.match(pctx) {
		return false
	}
	if m.Inet4 != nil && !m.Inet4.match(pctx) {
		return false
	}

	switch {
	case m.TCP != nil:
		return m.TCP.match(pctx, 6)
	case m.UDP != nil:
		return m.UDP.match(pctx, 17)
	case m.ICMP != nil:
		return m.ICMP.match(pctx)
	}
	return true
}

func (em *EtherMatch) match(pctx *PacketContext) bool {
	ether := pctx.EtherPacket()
	if ether == nil {
		return false
	}
	if em.Src != nil {
		pctx.AddMatchField(MatchDlSrc)
		if !bytes.Equal(em.Src, ether.SourceAddress()) {
			return false
		}
	}
	if em.Dst != nil {
		pctx.AddMatchField(MatchDlDst)
		if !bytes.Equal(em.Dst, ether.DestinationAddress()) {
			return false
		}
	}
	if em.EtherType != nil {
		pctx.AddMatchField(MatchDlType)
		if ether.EtherType() != *em.EtherType {
			return false
		}
	}
	if em.VlanID != nil {
		pctx.AddMatchField(MatchDlVlan)
		if ether.VlanID() != *em.VlanID {
			return false
		}
	}
	if em.VlanPriority != nil {
		pctx.AddMatchField(MatchDlVlan)
		pctx.AddMatchField(MatchDlVlanPcp)
		if !ether.Tagged() || ether.VlanPriority() != *em.VlanPriority {
			return false
		}
	}
	return true
}

func (im *Inet4Match) match(pctx *PacketContext) bool {
	pctx.AddMatchField(MatchDlType)
	inet4 := pctx.Inet4Packet()
	if inet4 == nil {
		return false
	}
	if im.Src != nil {
		pctx.AddMatchField(MatchNwSrc)
		if !im.Src.Contains(inet4.SourceAddress()) {
			return false
		}
	}
	if im.Dst != nil {
		pctx.AddMatchField(MatchNwDst)
		if !im.Dst.Contains(inet4.DestinationAddress()) {
			return false
		}
	}
	if im.Protocol != nil {
		pctx.AddMatchField(MatchNwProto)
		if inet4.Protocol() != *im.Protocol {
			return false
		}
	}
	if im.Dscp != nil {
		pctx.AddMatchField(MatchNwDscp)
		if inet4.Dscp() != *im.Dscp {
			return false
		}
	}
	return true
}

// l4Header checks the IP protocol of the packet and returns its transport
// header.
func l4Header(pctx *PacketContext, proto uint8) pktcache.L4Packet {
	pctx.AddMatchField(MatchDlType)
	inet4 := pctx.Inet4Packet()
	if inet4 == nil {
		return nil
	}
	pctx.AddMatchField(MatchNwProto)
	if inet4.Protocol() != proto {
		return nil
	}
	return pctx.L4Packet()
}

type portPacket interface {
	SourcePort() uint16
	DestinationPort() uint16
}

func (pm *PortMatch) match(pctx *PacketContext, proto uint8) bool {
	l4, ok := l4Header(pctx, proto).(portPacket)
	if !ok {
		return false
	}
	if pm.Src != nil {
		pctx.AddMatchField(MatchTpSrc)
		if !pm.Src.contains(l4.SourcePort()) {
			return false
		}
	}
	if pm.Dst != nil {
		pctx.AddMatchField(MatchTpDst)
		if !pm.Dst.contains(l4.DestinationPort()) {
			return false
		}
	}
	return true
}

func (cm *ICMPMatch) match(pctx *PacketContext) bool {
	icmp, ok := l4Header(pctx, 1).(*pktcache.ICMPPacket)
	if !ok {
		return false
	}
	if cm.Type != nil {
		pctx.AddMatchField(MatchIcmpType)
		if icmp.Type() != *cm.Type {
			return false
		}
	}
	if cm.Code != nil {
		pctx.AddMatchField(MatchIcmpCode)
		if icmp.Code() != *cm.Code {
			return false
		}
	}
	return true
}
