package flowfilter

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }
func u32(v uint32) *uint32 { return &v }

func ipNet(t *testing.T, cidr string) *net.IPNet {
	_, nw, err := net.ParseCIDR(cidr)
	require.NoError(t, err)
	return nw
}

func TestConditionValidation(t *testing.T) {
	_, err := NewFlowCondition("")
	assert.True(t, IsBadRequest(err))
	_, err = NewFlowCondition("c", nil)
	assert.True(t, IsBadRequest(err))

	bad := []*FlowMatch{
		{Index: 0},
		{Index: 65536},
		{Index: 1, Ether: &EtherMatch{Src: net.HardwareAddr{1, 2, 3}}},
		{Index: 1, Ether: &EtherMatch{VlanID: u16(4096)}},
		{Index: 1, Ether: &EtherMatch{VlanPriority: u8(8)}},
		{Index: 1, Inet4: &Inet4Match{Dscp: u8(64)}},
		{Index: 1, Inet4: &Inet4Match{Src: ipNet(t, "fe80::/64")}},
		{Index: 1, Inet4: &Inet4Match{Protocol: u8(17)}, TCP: &PortMatch{}},
		{Index: 1, TCP: &PortMatch{}, UDP: &PortMatch{}},
		{Index: 1, UDP: &PortMatch{Src: &PortRange{From: 100, To: 10}}},
	}
	for _, m := range bad {
		_, err := NewFlowCondition("c", m)
		assert.True(t, IsBadRequest(err), "%+v: %v", m, err)
	}

	_, err = NewFlowCondition("c", &FlowMatch{Index: 2}, &FlowMatch{Index: 2})
	assert.True(t, IsBadRequest(err))

	c, err := NewFlowCondition("c", &FlowMatch{Index: 9}, &FlowMatch{Index: 3})
	require.NoError(t, err)
	matches := c.Matches()
	require.Len(t, matches, 2)
	assert.Equal(t, 3, matches[0].Index)
	assert.Equal(t, 9, matches[1].Index)
}

func TestEmptyConditionMatchesAll(t *testing.T) {
	c, err := NewFlowCondition("any")
	require.NoError(t, err)
	for _, pctx := range []*PacketContext{tcpContext(t), arpContext(t), NewPacketContext([]byte{1, 2, 3}, 1)} {
		assert.True(t, c.Match(pctx))
		assert.Empty(t, pctx.MatchFields())
	}
}

func TestARPCondition(t *testing.T) {
	c, err := NewFlowCondition("arp-only", &FlowMatch{
		Index: 1,
		Ether: &EtherMatch{EtherType: u16(0x0806)},
	})
	require.NoError(t, err)

	arp := arpContext(t)
	assert.True(t, c.Match(arp))
	assert.Equal(t, []MatchType{MatchDlType}, arp.MatchFields())

	tcp := tcpContext(t)
	assert.False(t, c.Match(tcp))
	assert.Equal(t, []MatchType{MatchDlType}, tcp.MatchFields())
}

func TestMatchFieldsRecordedOnMismatch(t *testing.T) {
	c, err := NewFlowCondition("web", &FlowMatch{
		Index:  1,
		InPort: u32(1),
		Inet4:  &Inet4Match{Src: ipNet(t, "10.0.0.0/24")},
		TCP:    &PortMatch{Dst: &PortRange{From: 443}},
	})
	require.NoError(t, err)

	pctx := tcpContext(t)
	assert.False(t, c.Match(pctx))
	assert.Equal(t, []MatchType{MatchInPort, MatchDlType, MatchNwSrc, MatchNwProto, MatchTpDst},
		pctx.MatchFields())
	assert.False(t, pctx.Cache().Modified())
}

func TestShortCircuit(t *testing.T) {
	c, err := NewFlowCondition("c", &FlowMatch{
		Index:  1,
		InPort: u32(2),
		Ether:  &EtherMatch{Src: hostMAC},
	})
	require.NoError(t, err)

	pctx := tcpContext(t)
	assert.False(t, c.Match(pctx))
	assert.Equal(t, []MatchType{MatchInPort}, pctx.MatchFields())
}

func TestConditionMatches(t *testing.T) {
	tests := []struct {
		name  string
		match FlowMatch
		pctx  func(t *testing.T) *PacketContext
		want  bool
	}{
		{"tcp port range", FlowMatch{TCP: &PortMatch{Dst: &PortRange{From: 1, To: 1024}}}, tcpContext, true},
		{"tcp src port", FlowMatch{TCP: &PortMatch{Src: &PortRange{From: 80}}}, tcpContext, false},
		{"udp on tcp", FlowMatch{UDP: &PortMatch{}}, tcpContext, false},
		{"udp dst", FlowMatch{UDP: &PortMatch{Dst: &PortRange{From: 53}}}, udpContext, true},
		{"icmp echo", FlowMatch{ICMP: &ICMPMatch{Type: u8(8), Code: u8(0)}}, icmpContext, true},
		{"icmp unreachable", FlowMatch{ICMP: &ICMPMatch{Type: u8(3)}}, icmpContext, false},
		{"icmp on arp", FlowMatch{ICMP: &ICMPMatch{}}, arpContext, false},
		{"dst net", FlowMatch{Inet4: &Inet4Match{Dst: ipNet(t, "10.0.0.2/32")}}, udpContext, true},
		{"protocol", FlowMatch{Inet4: &Inet4Match{Protocol: u8(17)}}, tcpContext, false},
		{"dscp", FlowMatch{Inet4: &Inet4Match{Dscp: u8(0)}}, tcpContext, true},
		{"mac", FlowMatch{Ether: &EtherMatch{Src: hostMAC, Dst: peerMAC}}, tcpContext, true},
		{"untagged", FlowMatch{Ether: &EtherMatch{VlanID: u16(0)}}, tcpContext, true},
		{"priority on untagged", FlowMatch{Ether: &EtherMatch{VlanPriority: u8(0)}}, tcpContext, false},
		{"broadcast", FlowMatch{Ether: &EtherMatch{Dst: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}}, arpContext, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.match
			m.Index = 1
			c, err := NewFlowCondition(tt.name, &m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Match(tt.pctx(t)))
		})
	}
}

func TestAnyMatch(t *testing.T) {
	c, err := NewFlowCondition("c",
		&FlowMatch{Index: 1, UDP: &PortMatch{}},
		&FlowMatch{Index: 2, TCP: &PortMatch{Dst: &PortRange{From: 80}}},
	)
	require.NoError(t, err)
	assert.True(t, c.Match(tcpContext(t)))
	assert.True(t, c.Match(udpContext(t)))
	assert.False(t, c.Match(icmpContext(t)))
}
