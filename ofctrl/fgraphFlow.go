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
package ofctrl

// This file compiles the result of a flow filter evaluation into a flow entry

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"antrea.io/libOpenflow/openflow15"
	log "github.com/sirupsen/logrus"

	"github.com/contiv/flowfilter/flowfilter"
	"github.com/contiv/flowfilter/pktcache"
)

const (
	IP_PROTO_ICMP = 1
	IP_PROTO_TCP  = 6
	IP_PROTO_UDP  = 17
)

var (
	UnknownRedirectPortError = errors.New("redirect destination has no port")
	NoEthernetError          = errors.New("packet is not an ethernet frame")
)

// Fields of the original packet a flow entry has to match
type FlowMatch struct {
	Priority  uint16            // Priority of the flow
	InputPort uint32            // Input port number
	MacDa     *net.HardwareAddr // Mac dest
	MacSa     *net.HardwareAddr // Mac source
	Ethertype uint16            // Ethertype
	NonVlan   bool              // Match untagged frames only
	VlanId    *uint16           // vlan id
	VlanPcp   *uint8            // vlan priority
	IpSa      *net.IP           // IPv4 source addr
	IpDa      *net.IP           // IPv4 dest addr
	IpProto   uint8             // IP protocol
	IpDscp    *uint8            // DSCP field
	SrcPort   *uint16           // TCP or UDP source port
	DstPort   *uint16           // TCP or UDP dest port
	Icmp4Type *uint8            // ICMPv4 type
	Icmp4Code *uint8            // ICMPv4 code
}

// NewFlowMatch builds the match from the fields consulted while the packet
// was evaluated. Values are taken from the packet as it was received.
func NewFlowMatch(pctx *flowfilter.PacketContext, priority uint16) (*FlowMatch, error) {
	m := &FlowMatch{Priority: priority, InputPort: pctx.InPort()}

	orig := pktcache.New(pctx.Cache().Frame())
	ether := orig.EtherPacket()
	if ether == nil {
		return nil, NoEthernetError
	}

	has := pctx.HasMatchField
	if has(flowfilter.MatchDlSrc) {
		mac := ether.SourceAddress()
		m.MacSa = &mac
	}
	if has(flowfilter.MatchDlDst) {
		mac := ether.DestinationAddress()
		m.MacDa = &mac
	}
	if has(flowfilter.MatchDlType) {
		m.Ethertype = ether.EtherType()
	}
	if has(flowfilter.MatchDlVlan) || has(flowfilter.MatchDlVlanPcp) {
		if ether.Tagged() {
			vid := ether.VlanID()
			m.VlanId = &vid
		} else {
			m.NonVlan = true
		}
	}
	if has(flowfilter.MatchDlVlanPcp) && ether.Tagged() {
		pcp := ether.VlanPriority()
		m.VlanPcp = &pcp
	}

	inet4 := orig.Inet4Packet()
	if inet4 == nil {
		return m, nil
	}
	ipMatched := false
	if has(flowfilter.MatchNwSrc) {
		ip := inet4.SourceAddress()
		m.IpSa = &ip
		ipMatched = true
	}
	if has(flowfilter.MatchNwDst) {
		ip := inet4.DestinationAddress()
		m.IpDa = &ip
		ipMatched = true
	}
	if has(flowfilter.MatchNwDscp) {
		dscp := inet4.Dscp()
		m.IpDscp = &dscp
		ipMatched = true
	}
	if has(flowfilter.MatchNwProto) {
		m.IpProto = inet4.Protocol()
		ipMatched = true
	}

	l4Matched := false
	switch l4 := orig.L4Packet().(type) {
	case *pktcache.TCPPacket:
		l4Matched = m.setPorts(pctx, l4.SourcePort(), l4.DestinationPort())
	case *pktcache.UDPPacket:
		l4Matched = m.setPorts(pctx, l4.SourcePort(), l4.DestinationPort())
	case *pktcache.ICMPPacket:
		if has(flowfilter.MatchIcmpType) {
			t := l4.Type()
			m.Icmp4Type = &t
			l4Matched = true
		}
		if has(flowfilter.MatchIcmpCode) {
			code := l4.Code()
			m.Icmp4Code = &code
			l4Matched = true
		}
	}

	// Prerequisites of the IP and transport fields.
	if l4Matched {
		m.IpProto = inet4.Protocol()
		ipMatched = true
	}
	if ipMatched {
		m.Ethertype = ether.EtherType()
	}
	return m, nil
}

func (m *FlowMatch) setPorts(pctx *flowfilter.PacketContext, src, dst uint16) bool {
	matched := false
	if pctx.HasMatchField(flowfilter.MatchTpSrc) {
		m.SrcPort = &src
		matched = true
	}
	if pctx.HasMatchField(flowfilter.MatchTpDst) {
		m.DstPort = &dst
		matched = true
	}
	return matched
}

// FlowConfig holds the flow entry attributes that do not depend on the
// packet.
type FlowConfig struct {
	TableId  uint8
	Priority uint16
	CookieID uint64
	// Output port of packets that passed through. The switch forwards them
	// with normal processing if zero.
	OutPort uint32
	// RedirectPort resolves the port of a redirect destination.
	RedirectPort func(dest flowfilter.RedirectDestination) (uint32, bool)
}

// State of a flow entry
type Flow struct {
	TableId     uint8      // Table where this flow resides
	Match       FlowMatch  // Fields to be matched
	NextElem    FgraphElem // Next fw graph element
	CookieID    uint64     // Cookie ID for flowMod message
	flowActions []OFAction // List of flow actions
}

// NewFlow compiles an evaluated packet and its outcome into a flow entry.
func NewFlow(pctx *flowfilter.PacketContext, outcome flowfilter.Outcome, cfg FlowConfig) (*Flow, error) {
	match, err := NewFlowMatch(pctx, cfg.Priority)
	if err != nil {
		return nil, err
	}
	flow := &Flow{
		TableId:  cfg.TableId,
		Match:    *match,
		CookieID: cfg.CookieID,
	}

	switch outcome.Verdict {
	case flowfilter.Dropped:
		flow.NextElem = NewDropElem()
	case flowfilter.Redirected:
		if outcome.Redirect == nil || cfg.RedirectPort == nil {
			return nil, UnknownRedirectPortError
		}
		port, ok := cfg.RedirectPort(*outcome.Redirect)
		if !ok {
			return nil, fmt.Errorf("%w: %s", UnknownRedirectPortError, outcome.Redirect)
		}
		flow.NextElem = NewOutputPort(port)
	default:
		if cfg.OutPort != 0 {
			flow.NextElem = NewOutputPort(cfg.OutPort)
		} else {
			flow.NextElem = NewNormalLookup()
		}
	}

	// Actions are useless if the packet is dropped.
	if outcome.Verdict == flowfilter.Dropped {
		return flow, nil
	}
	for _, act := range pctx.AppliedActions() {
		if pcp, ok := act.(*flowfilter.SetVlanPcpAction); ok && match.VlanId == nil && !taggedFrame(pctx) {
			if pcp.Priority() == 0 {
				// The packet stays untagged.
				continue
			}
			flow.flowActions = append(flow.flowActions, &PushVLANAction{})
		}
		ofAct, err := NewOFAction(act)
		if err != nil {
			return nil, err
		}
		flow.flowActions = append(flow.flowActions, ofAct)
	}
	return flow, nil
}

func taggedFrame(pctx *flowfilter.PacketContext) bool {
	ether := pktcache.New(pctx.Cache().Frame()).EtherPacket()
	return ether != nil && ether.Tagged()
}

// PushVLANAction adds a priority tag to an untagged frame.
type PushVLANAction struct{}

func (a *PushVLANAction) GetActionMessage() openflow15.Action {
	return openflow15.NewActionPushVlan(0x8100)
}

// Fgraph element type for the flow
func (self *Flow) Type() string {
	return "flow"
}

// Actions returns the set-field actions of the flow in execution order.
func (self *Flow) Actions() []OFAction {
	acts := make([]OFAction, len(self.flowActions))
	copy(acts, self.flowActions)
	return acts
}

// Translate our match fields into openflow 1.5 match fields
func (self *Flow) xlateMatch() (openflow15.Match, error) {
	ofMatch := openflow15.NewMatch()

	// Handle input port
	inportField := openflow15.NewInPortField(self.Match.InputPort)
	ofMatch.AddField(*inportField)

	if self.Match.MacDa != nil {
		macDaField := openflow15.NewEthDstField(*self.Match.MacDa, nil)
		ofMatch.AddField(*macDaField)
	}
	if self.Match.MacSa != nil {
		macSaField := openflow15.NewEthSrcField(*self.Match.MacSa, nil)
		ofMatch.AddField(*macSaField)
	}

	if self.Match.Ethertype != 0 {
		etypeField := openflow15.NewEthTypeField(self.Match.Ethertype)
		ofMatch.AddField(*etypeField)
	}

	// Handle Vlan id
	if self.Match.NonVlan {
		vidField := openflow15.NewVlanIdField(0, nil)
		vidField.Value = new(openflow15.VlanIdField)
		ofMatch.AddField(*vidField)
	} else if self.Match.VlanId != nil {
		vidField := openflow15.NewVlanIdField(*self.Match.VlanId, nil)
		ofMatch.AddField(*vidField)
	}
	if self.Match.VlanPcp != nil {
		pcpField, err := vlanPcpField(*self.Match.VlanPcp)
		if err != nil {
			return openflow15.Match{}, err
		}
		ofMatch.AddField(*pcpField)
	}

	if self.Match.IpSa != nil {
		ipSaField := openflow15.NewIpv4SrcField(*self.Match.IpSa, nil)
		ofMatch.AddField(*ipSaField)
	}
	if self.Match.IpDa != nil {
		ipDaField := openflow15.NewIpv4DstField(*self.Match.IpDa, nil)
		ofMatch.AddField(*ipDaField)
	}
	if self.Match.IpProto != 0 {
		protoField := openflow15.NewIpProtoField(self.Match.IpProto)
		ofMatch.AddField(*protoField)
	}
	if self.Match.IpDscp != nil {
		dscpField := openflow15.NewIpDscpField(*self.Match.IpDscp, nil)
		ofMatch.AddField(*dscpField)
	}

	// Handle port numbers
	if self.Match.SrcPort != nil {
		var portField *openflow15.MatchField
		if self.Match.IpProto == IP_PROTO_UDP {
			portField = openflow15.NewUdpSrcField(*self.Match.SrcPort)
		} else {
			portField = openflow15.NewTcpSrcField(*self.Match.SrcPort)
		}
		ofMatch.AddField(*portField)
	}
	if self.Match.DstPort != nil {
		var portField *openflow15.MatchField
		if self.Match.IpProto == IP_PROTO_UDP {
			portField = openflow15.NewUdpDstField(*self.Match.DstPort)
		} else {
			portField = openflow15.NewTcpDstField(*self.Match.DstPort)
		}
		ofMatch.AddField(*portField)
	}

	if self.Match.Icmp4Type != nil {
		icmp4TypeField, err := openflow15.FindFieldHeaderByName("NXM_OF_ICMP_TYPE", false)
		if err != nil {
			return openflow15.Match{}, err
		}
		icmp4TypeField.Value = &openflow15.IcmpTypeField{Type: *self.Match.Icmp4Type}
		ofMatch.AddField(*icmp4TypeField)
	}
	if self.Match.Icmp4Code != nil {
		icmp4CodeField, err := openflow15.FindFieldHeaderByName("NXM_OF_ICMP_CODE", false)
		if err != nil {
			return openflow15.Match{}, err
		}
		icmp4CodeField.Value = &openflow15.IcmpCodeField{Code: *self.Match.Icmp4Code}
		ofMatch.AddField(*icmp4CodeField)
	}

	return *ofMatch, nil
}

// Install all flow actions
func (self *Flow) installFlowActions(flowMod *openflow15.FlowMod, instr openflow15.Instruction) error {
	// Loop thru all actions in reversed order, and prepend the action into instruction, so that the actions is in the
	// order as it is added by the client.
	for i := len(self.flowActions) - 1; i >= 0; i-- {
		act := self.flowActions[i].GetActionMessage()
		if err := instr.AddAction(act, true); err != nil {
			return err
		}
		log.Debugf("flow install: added action: %+v", act)
	}
	return nil
}

// GenerateFlowModMessage translates the Flow a FlowMod message according to the commandType.
func (self *Flow) GenerateFlowModMessage(commandType int) (flowMod *openflow15.FlowMod, err error) {
	flowMod = openflow15.NewFlowMod()
	flowMod.TableId = self.TableId
	flowMod.Priority = self.Match.Priority
	flowMod.Cookie = self.CookieID
	flowMod.Command = uint8(commandType)

	// convert match fields to openflow 1.5 format
	flowMod.Match, err = self.xlateMatch()
	if err != nil {
		return nil, err
	}
	log.Debugf("flow install: Match: %+v", flowMod.Match)

	// a nil instruction means drop action
	instr := self.NextElem.GetFlowInstr()
	if instr != nil {
		if err = self.installFlowActions(flowMod, instr); err != nil {
			return nil, err
		}
		flowMod.AddInstruction(instr)
		log.Debugf("flow install: added next instr: %+v", instr)
	}
	return flowMod, nil
}

// BuildFlowMod compiles an evaluated packet into a flow-mod adding the
// flow entry for the packet's flow.
func BuildFlowMod(pctx *flowfilter.PacketContext, outcome flowfilter.Outcome, cfg FlowConfig) (*openflow15.FlowMod, error) {
	flow, err := NewFlow(pctx, outcome, cfg)
	if err != nil {
		return nil, err
	}
	return flow.GenerateFlowModMessage(openflow15.FC_ADD)
}

// String returns the flow in ovs-ofctl notation.
func (self *Flow) String() string {
	fields := []string{
		fmt.Sprintf("table=%d", self.TableId),
		fmt.Sprintf("priority=%d", self.Match.Priority),
		fmt.Sprintf("in_port=%d", self.Match.InputPort),
	}
	m := &self.Match
	if m.MacSa != nil {
		fields = append(fields, fmt.Sprintf("dl_src=%s", *m.MacSa))
	}
	if m.MacDa != nil {
		fields = append(fields, fmt.Sprintf("dl_dst=%s", *m.MacDa))
	}
	if m.Ethertype != 0 {
		fields = append(fields, fmt.Sprintf("dl_type=0x%04x", m.Ethertype))
	}
	if m.NonVlan {
		fields = append(fields, "vlan_tci=0x0000/0x1000")
	} else if m.VlanId != nil {
		fields = append(fields, fmt.Sprintf("dl_vlan=%d", *m.VlanId))
	}
	if m.VlanPcp != nil {
		fields = append(fields, fmt.Sprintf("dl_vlan_pcp=%d", *m.VlanPcp))
	}
	if m.IpSa != nil {
		fields = append(fields, fmt.Sprintf("nw_src=%s", *m.IpSa))
	}
	if m.IpDa != nil {
		fields = append(fields, fmt.Sprintf("nw_dst=%s", *m.IpDa))
	}
	if m.IpProto != 0 {
		fields = append(fields, fmt.Sprintf("nw_proto=%d", m.IpProto))
	}
	if m.IpDscp != nil {
		fields = append(fields, fmt.Sprintf("ip_dscp=%d", *m.IpDscp))
	}
	if m.SrcPort != nil {
		fields = append(fields, fmt.Sprintf("tp_src=%d", *m.SrcPort))
	}
	if m.DstPort != nil {
		fields = append(fields, fmt.Sprintf("tp_dst=%d", *m.DstPort))
	}
	if m.Icmp4Type != nil {
		fields = append(fields, fmt.Sprintf("icmp_type=%d", *m.Icmp4Type))
	}
	if m.Icmp4Code != nil {
		fields = append(fields, fmt.Sprintf("icmp_code=%d", *m.Icmp4Code))
	}

	acts := make([]string, 0, len(self.flowActions)+1)
	for _, act := range self.flowActions {
		acts = append(acts, actionString(act))
	}
	if out, ok := self.NextElem.(*Output); ok {
		switch out.outputType {
		case "drop":
			acts = append(acts, "drop")
		case "normal":
			acts = append(acts, "NORMAL")
		default:
			acts = append(acts, fmt.Sprintf("output:%d", out.portNo))
		}
	}
	return strings.Join(fields, ",") + " actions=" + strings.Join(acts, ",")
}

func actionString(act OFAction) string {
	switch a := act.(type) {
	case *SetSrcMACAction:
		return fmt.Sprintf("set_field:%s->eth_src", a.MAC)
	case *SetDstMACAction:
		return fmt.Sprintf("set_field:%s->eth_dst", a.MAC)
	case *SetSrcIPAction:
		return fmt.Sprintf("set_field:%s->ip_src", a.IP)
	case *SetDstIPAction:
		return fmt.Sprintf("set_field:%s->ip_dst", a.IP)
	case *SetDSCPAction:
		return fmt.Sprintf("set_field:%d->ip_dscp", a.Value)
	case *SetICMPTypeAction:
		return fmt.Sprintf("set_field:%d->icmp_type", a.Value)
	case *SetICMPCodeAction:
		return fmt.Sprintf("set_field:%d->icmp_code", a.Value)
	case *SetVLANPCPAction:
		return fmt.Sprintf("set_field:%d->vlan_pcp", a.Value)
	case *PushVLANAction:
		return "push_vlan:0x8100"
	}
	return fmt.Sprintf("%T", act)
}
