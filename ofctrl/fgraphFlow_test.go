package ofctrl

import (
	"net"
	"testing"

	"antrea.io/libOpenflow/openflow15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contiv/flowfilter/flowfilter"
	"github.com/contiv/flowfilter/pktcache"
)

var (
	srcMAC, _ = net.ParseMAC("00:11:22:33:44:55")
	dstMAC, _ = net.ParseMAC("00:aa:bb:cc:dd:ee")
	srcIP     = net.ParseIP("10.0.0.1")
	dstIP     = net.ParseIP("10.0.0.2")
)

func newContext(t *testing.T, f *pktcache.Frame, inPort uint32) *flowfilter.PacketContext {
	data, err := f.Serialize()
	require.NoError(t, err)
	return flowfilter.NewPacketContext(data, inPort)
}

func evaluate(t *testing.T, pctx *flowfilter.PacketContext, cond *flowfilter.FlowCondition, filters ...*flowfilter.FlowFilter) flowfilter.Outcome {
	conds := flowfilter.NewConditionStore()
	require.NoError(t, conds.PutCondition(cond))
	list, err := flowfilter.NewFlowFilterList(filters...)
	require.NoError(t, err)
	return flowfilter.NewPipeline(conds).EvaluateList(list, pctx)
}

func applyActions(t *testing.T, instr openflow15.Instruction) []openflow15.Action {
	acts, ok := instr.(*openflow15.InstrActions)
	require.True(t, ok)
	return acts.Actions
}

func TestPassedFlow(t *testing.T) {
	port := uint16(80)
	cond, err := flowfilter.NewFlowCondition("web", &flowfilter.FlowMatch{
		Index: 1,
		TCP:   &flowfilter.PortMatch{Dst: &flowfilter.PortRange{From: port}},
	})
	require.NoError(t, err)
	dscp, _ := flowfilter.NewSetDscpAction(46)
	nwDst, _ := flowfilter.NewSetInet4DstAction("192.168.0.9")
	filter, err := flowfilter.NewPassFilter(1, "web", dscp, nwDst)
	require.NoError(t, err)

	pctx := newContext(t, pktcache.GenerateTCPFrame(srcMAC, dstMAC, srcIP, dstIP, 3333, port), 5)
	out := evaluate(t, pctx, cond, filter)
	require.Equal(t, flowfilter.PassedThrough, out.Verdict)

	flow, err := NewFlow(pctx, out, FlowConfig{TableId: 2, Priority: 100, CookieID: 7})
	require.NoError(t, err)

	// The match carries the received values, not the rewritten ones.
	assert.Equal(t, uint32(5), flow.Match.InputPort)
	assert.Equal(t, uint16(0x0800), flow.Match.Ethertype)
	assert.Equal(t, uint8(IP_PROTO_TCP), flow.Match.IpProto)
	require.NotNil(t, flow.Match.DstPort)
	assert.Equal(t, port, *flow.Match.DstPort)
	assert.Nil(t, flow.Match.SrcPort)
	assert.Nil(t, flow.Match.IpDa)
	assert.Nil(t, flow.Match.MacSa)

	acts := flow.Actions()
	require.Len(t, acts, 2)
	assert.Equal(t, &SetDSCPAction{Value: 46}, acts[0])
	assert.Equal(t, &SetDstIPAction{IP: net.IP{192, 168, 0, 9}}, acts[1])

	flowMod, err := flow.GenerateFlowModMessage(openflow15.FC_ADD)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), flowMod.TableId)
	assert.Equal(t, uint16(100), flowMod.Priority)
	assert.Equal(t, uint64(7), flowMod.Cookie)
	assert.Equal(t, uint8(openflow15.FC_ADD), flowMod.Command)

	matchers := NewMatchers(&flowMod.Match)
	assert.Equal(t, 4, matchers.Len())
	assert.Equal(t, uint32(5), matchers.GetMatchByName("OXM_OF_IN_PORT").GetValue())
	assert.Equal(t, uint16(0x0800), matchers.GetMatchByName("OXM_OF_ETH_TYPE").GetValue())
	assert.Equal(t, uint16(80), matchers.GetMatchByName("OXM_OF_TCP_DST").GetValue())
	assert.Nil(t, matchers.GetMatchByName("OXM_OF_TCP_SRC"))

	require.Len(t, flowMod.Instructions, 1)
	actions := applyActions(t, flowMod.Instructions[0])
	require.Len(t, actions, 3)
	assert.IsType(t, &openflow15.ActionSetField{}, actions[0])
	assert.IsType(t, &openflow15.ActionSetField{}, actions[1])
	output, ok := actions[2].(*openflow15.ActionOutput)
	require.True(t, ok)
	assert.Equal(t, uint32(openflow15.P_NORMAL), output.Port)

	assert.Equal(t,
		"table=2,priority=100,in_port=5,dl_type=0x0800,nw_proto=6,tp_dst=80 "+
			"actions=set_field:46->ip_dscp,set_field:192.168.0.9->ip_dst,NORMAL",
		flow.String())
}

func TestDroppedFlow(t *testing.T) {
	cond, err := flowfilter.NewFlowCondition("arp-only", &flowfilter.FlowMatch{
		Index: 1,
		Ether: &flowfilter.EtherMatch{EtherType: func() *uint16 { v := uint16(0x0806); return &v }()},
	})
	require.NoError(t, err)
	dlSrc, _ := flowfilter.NewSetDlSrcAction(dstMAC)
	filter, err := flowfilter.NewDropFilter(1, "arp-only", dlSrc)
	require.NoError(t, err)

	pctx := newContext(t, pktcache.GenerateARPRequest(srcMAC, srcIP, dstIP), 3)
	out := evaluate(t, pctx, cond, filter)
	require.Equal(t, flowfilter.Dropped, out.Verdict)

	flowMod, err := BuildFlowMod(pctx, out, FlowConfig{Priority: 10})
	require.NoError(t, err)
	assert.Empty(t, flowMod.Instructions)

	matchers := NewMatchers(&flowMod.Match)
	assert.Equal(t, 2, matchers.Len())
	assert.Equal(t, uint16(0x0806), matchers.GetMatchByName("OXM_OF_ETH_TYPE").GetValue())
}

func TestRedirectedFlow(t *testing.T) {
	cond, err := flowfilter.NewFlowCondition("any")
	require.NoError(t, err)
	icmpType, _ := flowfilter.NewSetIcmpTypeAction(0)
	pcp, _ := flowfilter.NewSetVlanPcpAction(5)
	dest := flowfilter.RedirectDestination{Interface: "tap1"}
	filter, err := flowfilter.NewRedirectFilter(1, "any", dest, icmpType, pcp)
	require.NoError(t, err)

	pctx := newContext(t, pktcache.GenerateICMPFrame(srcMAC, dstMAC, srcIP, dstIP, nil, nil), 1)
	out := evaluate(t, pctx, cond, filter)
	require.Equal(t, flowfilter.Redirected, out.Verdict)

	_, err = BuildFlowMod(pctx, out, FlowConfig{})
	assert.ErrorIs(t, err, UnknownRedirectPortError)

	ports := func(d flowfilter.RedirectDestination) (uint32, bool) {
		return 42, d.Interface == "tap1"
	}
	flow, err := NewFlow(pctx, out, FlowConfig{RedirectPort: ports})
	require.NoError(t, err)

	// Redirect depends on the destination address.
	require.NotNil(t, flow.Match.MacDa)
	assert.Equal(t, dstMAC, *flow.Match.MacDa)
	// ICMP rewrites pin the protocol.
	assert.Equal(t, uint8(IP_PROTO_ICMP), flow.Match.IpProto)
	assert.Equal(t, uint16(0x0800), flow.Match.Ethertype)

	acts := flow.Actions()
	require.Len(t, acts, 3)
	assert.IsType(t, &SetICMPTypeAction{}, acts[0])
	assert.IsType(t, &PushVLANAction{}, acts[1])
	assert.IsType(t, &SetVLANPCPAction{}, acts[2])

	flowMod, err := flow.GenerateFlowModMessage(openflow15.FC_ADD)
	require.NoError(t, err)
	actions := applyActions(t, flowMod.Instructions[0])
	require.Len(t, actions, 4)
	output, ok := actions[3].(*openflow15.ActionOutput)
	require.True(t, ok)
	assert.Equal(t, uint32(42), output.Port)
}

func TestVlanPriorityFlow(t *testing.T) {
	cond, err := flowfilter.NewFlowCondition("any")
	require.NoError(t, err)
	pcp, _ := flowfilter.NewSetVlanPcpAction(5)
	filter, err := flowfilter.NewPassFilter(1, "any", pcp)
	require.NoError(t, err)

	// Tagged frames keep their tag; the entry pins the received VLAN id.
	frame := pktcache.GenerateTCPFrame(srcMAC, dstMAC, srcIP, dstIP, 3333, 80)
	frame.Tagged = true
	frame.VlanID = 10
	pctx := newContext(t, frame, 2)
	out := evaluate(t, pctx, cond, filter)
	require.Equal(t, flowfilter.PassedThrough, out.Verdict)

	flow, err := NewFlow(pctx, out, FlowConfig{Priority: 10})
	require.NoError(t, err)
	require.NotNil(t, flow.Match.VlanId)
	assert.Equal(t, uint16(10), *flow.Match.VlanId)
	assert.False(t, flow.Match.NonVlan)
	acts := flow.Actions()
	require.Len(t, acts, 1)
	assert.IsType(t, &SetVLANPCPAction{}, acts[0])
	assert.Contains(t, flow.String(), "dl_vlan=10")

	flowMod, err := flow.GenerateFlowModMessage(openflow15.FC_ADD)
	require.NoError(t, err)
	assert.NotNil(t, NewMatchers(&flowMod.Match).GetMatchByName("OXM_OF_VLAN_VID"))

	// Untagged frames get a priority tag; the entry must not match tagged ones.
	pctx = newContext(t, pktcache.GenerateTCPFrame(srcMAC, dstMAC, srcIP, dstIP, 3333, 80), 2)
	out = evaluate(t, pctx, cond, filter)
	require.Equal(t, flowfilter.PassedThrough, out.Verdict)

	flow, err = NewFlow(pctx, out, FlowConfig{Priority: 10})
	require.NoError(t, err)
	assert.True(t, flow.Match.NonVlan)
	assert.Nil(t, flow.Match.VlanId)
	acts = flow.Actions()
	require.Len(t, acts, 2)
	assert.IsType(t, &PushVLANAction{}, acts[0])
	assert.IsType(t, &SetVLANPCPAction{}, acts[1])
	assert.Contains(t, flow.String(), "vlan_tci=0x0000/0x1000")

	flowMod, err = flow.GenerateFlowModMessage(openflow15.FC_ADD)
	require.NoError(t, err)
	vid := NewMatchers(&flowMod.Match).GetMatchByName("OXM_OF_VLAN_VID")
	require.NotNil(t, vid)
	assert.Equal(t, uint16(0), vid.GetValue())
}

func TestNonEthernet(t *testing.T) {
	pctx := flowfilter.NewPacketContext([]byte{0x01, 0x02}, 1)
	_, err := BuildFlowMod(pctx, flowfilter.Outcome{Verdict: flowfilter.PassedThrough}, FlowConfig{})
	assert.ErrorIs(t, err, NoEthernetError)
}

func TestNewOFAction(t *testing.T) {
	for _, spec := range []flowfilter.ActionSpec{
		{Type: "set-dl-src", Value: "00:aa:bb:cc:dd:ee"},
		{Type: "set-dl-dst", Value: "00:aa:bb:cc:dd:ee"},
		{Type: "set-inet4-src", Value: "10.1.1.1"},
		{Type: "set-inet4-dst", Value: "10.1.1.2"},
		{Type: "set-dscp", Value: "10"},
		{Type: "set-icmp-type", Value: "3"},
		{Type: "set-icmp-code", Value: "4"},
		{Type: "set-vlan-pcp", Value: "6"},
	} {
		spec := spec
		act, err := flowfilter.NewFieldAction(&spec)
		require.NoError(t, err)
		ofAct, err := NewOFAction(act)
		require.NoError(t, err, spec.Type)
		setField, ok := ofAct.GetActionMessage().(*openflow15.ActionSetField)
		require.True(t, ok, spec.Type)
		assert.NotNil(t, setField.Field.Value, spec.Type)
	}
}
