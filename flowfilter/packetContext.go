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

// This file implements the per-packet state used while flow filters are
// evaluated.

import (
	"fmt"
	"strings"

	"github.com/contiv/flowfilter/pktcache"
	"github.com/jainvipin/bitset"
)

// PacketContext holds the evaluation state of one packet. It is not safe for
// concurrent use.
type PacketContext struct {
	cache       *pktcache.Cache
	inPort      uint32
	flooding    bool
	matchFields *bitset.BitSet // MatchType values consulted so far
	actions     []FieldAction  // Applied actions, one per ActionKind
	description string         // Cached packet description
}

// NewPacketContext creates the context for a frame received on inPort.
func NewPacketContext(frame []byte, inPort uint32) *PacketContext {
	return &PacketContext{
		cache:       pktcache.New(frame),
		inPort:      inPort,
		matchFields: bitset.New(uint(numMatchTypes)),
	}
}

func (pc *PacketContext) InPort() uint32 {
	return pc.inPort
}

// SetFlooding marks the packet as a flooded replica. It must be called
// before the packet is evaluated.
func (pc *PacketContext) SetFlooding(flooding bool) {
	pc.flooding = flooding
}

func (pc *PacketContext) IsFlooding() bool {
	return pc.flooding
}

func (pc *PacketContext) Cache() *pktcache.Cache {
	return pc.cache
}

func (pc *PacketContext) EtherPacket() *pktcache.EtherPacket {
	return pc.cache.EtherPacket()
}

func (pc *PacketContext) Inet4Packet() *pktcache.Inet4Packet {
	return pc.cache.Inet4Packet()
}

func (pc *PacketContext) L4Packet() pktcache.L4Packet {
	return pc.cache.L4Packet()
}

// IsMulticast returns true if the destination MAC address is a multicast
// or broadcast address.
func (pc *PacketContext) IsMulticast() bool {
	ether := pc.EtherPacket()
	return ether != nil && ether.IsMulticast()
}

// AddMatchField records that the given field has been consulted.
func (pc *PacketContext) AddMatchField(t MatchType) {
	pc.matchFields.Set(uint(t))
}

func (pc *PacketContext) HasMatchField(t MatchType) bool {
	return pc.matchFields.Test(uint(t))
}

// MatchFields returns the consulted fields in ascending order.
func (pc *PacketContext) MatchFields() []MatchType {
	var fields []MatchType
	for t := MatchType(0); t < numMatchTypes; t++ {
		if pc.HasMatchField(t) {
			fields = append(fields, t)
		}
	}
	return fields
}

// addFilterAction records an applied action. An action of a kind already
// recorded replaces the old one in place.
func (pc *PacketContext) addFilterAction(act FieldAction) {
	for i, a := range pc.actions {
		if a.Kind() == act.Kind() {
			pc.actions[i] = act
			return
		}
	}
	pc.actions = append(pc.actions, act)
}

// AppliedActions returns the applied actions in the order they were first
// applied.
func (pc *PacketContext) AppliedActions() []FieldAction {
	acts := make([]FieldAction, len(pc.actions))
	copy(acts, pc.actions)
	return acts
}

// Description returns a human readable summary of the packet. It is built
// on the first call only.
func (pc *PacketContext) Description() string {
	if pc.description == "" {
		pc.description = pc.describe()
	}
	return pc.description
}

func (pc *PacketContext) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "in_port=%d", pc.inPort)

	ether := pc.EtherPacket()
	if ether == nil {
		fmt.Fprintf(&b, ", len=%d", len(pc.cache.Frame()))
		return b.String()
	}
	fmt.Fprintf(&b, ", dl_src=%s, dl_dst=%s, dl_type=0x%04x",
		ether.SourceAddress(), ether.DestinationAddress(), ether.EtherType())
	if ether.Tagged() {
		fmt.Fprintf(&b, ", dl_vlan=%d, dl_vlan_pcp=%d", ether.VlanID(), ether.VlanPriority())
	}

	inet4 := pc.Inet4Packet()
	if inet4 == nil {
		return b.String()
	}
	fmt.Fprintf(&b, ", nw_src=%s, nw_dst=%s, nw_proto=%d, ip_dscp=%d",
		inet4.SourceAddress(), inet4.DestinationAddress(), inet4.Protocol(), inet4.Dscp())

	switch l4 := pc.L4Packet().(type) {
	case *pktcache.TCPPacket:
		fmt.Fprintf(&b, ", tp_src=%d, tp_dst=%d", l4.SourcePort(), l4.DestinationPort())
	case *pktcache.UDPPacket:
		fmt.Fprintf(&b, ", tp_src=%d, tp_dst=%d", l4.SourcePort(), l4.DestinationPort())
	case *pktcache.ICMPPacket:
		fmt.Fprintf(&b, ", icmp_type=%d, icmp_code=%d", l4.Type(), l4.Code())
	}
	return b.String()
}
