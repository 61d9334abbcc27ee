package flowfilter

import (
	"net"
	"testing"

	"github.com/contiv/flowfilter/pktcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hostMAC, _ = net.ParseMAC("00:11:22:33:44:55")
	peerMAC, _ = net.ParseMAC("00:aa:bb:cc:dd:ee")
	hostIP     = net.ParseIP("10.0.0.1")
	peerIP     = net.ParseIP("10.0.0.2")
)

func newContext(t *testing.T, f *pktcache.Frame) *PacketContext {
	data, err := f.Serialize()
	require.NoError(t, err)
	return NewPacketContext(data, 1)
}

func tcpContext(t *testing.T) *PacketContext {
	return newContext(t, pktcache.GenerateTCPFrame(hostMAC, peerMAC, hostIP, peerIP, 3333, 80))
}

func udpContext(t *testing.T) *PacketContext {
	return newContext(t, pktcache.GenerateUDPFrame(hostMAC, peerMAC, hostIP, peerIP, 5353, 53))
}

func icmpContext(t *testing.T) *PacketContext {
	return newContext(t, pktcache.GenerateICMPFrame(hostMAC, peerMAC, hostIP, peerIP, nil, nil))
}

func arpContext(t *testing.T) *PacketContext {
	return newContext(t, pktcache.GenerateARPRequest(hostMAC, hostIP, peerIP))
}

func TestRangeValidation(t *testing.T) {
	tests := []struct {
		name   string
		max    int
		create func(v int) error
	}{
		{"dscp", 63, func(v int) error { _, err := NewSetDscpAction(v); return err }},
		{"icmp-type", 255, func(v int) error { _, err := NewSetIcmpTypeAction(v); return err }},
		{"icmp-code", 255, func(v int) error { _, err := NewSetIcmpCodeAction(v); return err }},
		{"vlan-pcp", 7, func(v int) error { _, err := NewSetVlanPcpAction(v); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for v := 0; v <= tt.max; v++ {
				assert.NoError(t, tt.create(v), "value %d", v)
			}
			for _, v := range []int{-1, -100, tt.max + 1, 1000} {
				err := tt.create(v)
				assert.True(t, IsBadRequest(err), "value %d: %v", v, err)
			}
		})
	}
}

func TestMACValidation(t *testing.T) {
	bad := []net.HardwareAddr{
		nil,
		{0x00, 0x11, 0x22},
		{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
		{0, 0, 0, 0, 0, 0},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01},
	}
	for _, mac := range bad {
		_, err := NewSetDlSrcAction(mac)
		assert.True(t, IsBadRequest(err), "%v", mac)
		_, err = NewSetDlDstAction(mac)
		assert.True(t, IsBadRequest(err), "%v", mac)
	}

	act, err := NewSetDlSrcAction(peerMAC)
	require.NoError(t, err)
	assert.Equal(t, peerMAC, act.Address())
}

func TestInet4Validation(t *testing.T) {
	for _, addr := range []string{"", "10.0.0", "::1", "::ffff:10.0.0.1", "host", "10.0.0.256"} {
		_, err := NewSetInet4SrcAction(addr)
		assert.True(t, IsBadRequest(err), "%q", addr)
		_, err = NewSetInet4DstAction(addr)
		assert.True(t, IsBadRequest(err), "%q", addr)
	}

	act, err := NewSetInet4DstAction("192.168.1.1")
	require.NoError(t, err)
	assert.Equal(t, net.IP{192, 168, 1, 1}, act.Address())
}

func TestNewFieldAction(t *testing.T) {
	_, err := NewFieldAction(nil)
	assert.True(t, IsBadRequest(err))

	tests := []struct {
		spec ActionSpec
		ok   bool
	}{
		{ActionSpec{"set-dl-src", "00:aa:bb:cc:dd:ee"}, true},
		{ActionSpec{"set-dl-dst", "ff:ff:ff:ff:ff:ff"}, false},
		{ActionSpec{"set-dl-dst", "garbage"}, false},
		{ActionSpec{"set-inet4-src", "10.1.1.1"}, true},
		{ActionSpec{"set-inet4-dst", "fe80::1"}, false},
		{ActionSpec{"set-dscp", "46"}, true},
		{ActionSpec{"set-dscp", "64"}, false},
		{ActionSpec{"set-dscp", "ef"}, false},
		{ActionSpec{"set-icmp-type", " 3 "}, true},
		{ActionSpec{"set-icmp-code", "256"}, false},
		{ActionSpec{"set-vlan-pcp", "5"}, true},
		{ActionSpec{"set-tp-src", "80"}, false},
	}
	for _, tt := range tests {
		spec := tt.spec
		act, err := NewFieldAction(&spec)
		if tt.ok {
			require.NoError(t, err, "%v", spec)
			assert.Equal(t, spec.Type, act.Kind().String())
		} else {
			assert.True(t, IsBadRequest(err), "%v: %v", spec, err)
			assert.Nil(t, act)
		}
	}
}

func TestApplyDscp(t *testing.T) {
	for v := 0; v <= 63; v++ {
		pctx := tcpContext(t)
		act, err := NewSetDscpAction(v)
		require.NoError(t, err)

		assert.True(t, act.Apply(pctx))
		inet4 := pctx.Inet4Packet()
		assert.Equal(t, uint8(v), inet4.Dscp())
		assert.True(t, hostIP.Equal(inet4.SourceAddress()))
		assert.True(t, peerIP.Equal(inet4.DestinationAddress()))
		assert.Equal(t, uint8(6), inet4.Protocol())
		assert.True(t, pctx.HasMatchField(MatchDlType))
	}
}

func TestApplyVlanPcp(t *testing.T) {
	pcp, err := NewSetVlanPcpAction(5)
	require.NoError(t, err)

	pctx := tcpContext(t)
	assert.True(t, pcp.Apply(pctx))
	assert.True(t, pctx.HasMatchField(MatchDlVlan))
	assert.Equal(t, uint8(5), pctx.EtherPacket().VlanPriority())

	frame := pktcache.GenerateTCPFrame(hostMAC, peerMAC, hostIP, peerIP, 3333, 80)
	frame.Tagged = true
	frame.VlanID = 10
	pctx = newContext(t, frame)
	assert.True(t, pcp.Apply(pctx))
	assert.True(t, pctx.HasMatchField(MatchDlVlan))
	assert.Equal(t, uint16(10), pctx.EtherPacket().VlanID())
	assert.Equal(t, uint8(5), pctx.EtherPacket().VlanPriority())
}

func TestApplyDlAddresses(t *testing.T) {
	newMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	src, err := NewSetDlSrcAction(newMAC)
	require.NoError(t, err)
	dst, err := NewSetDlDstAction(newMAC)
	require.NoError(t, err)

	pctx := arpContext(t)
	assert.True(t, src.Apply(pctx))
	assert.True(t, dst.Apply(pctx))
	assert.Equal(t, newMAC, pctx.EtherPacket().SourceAddress())
	assert.Equal(t, newMAC, pctx.EtherPacket().DestinationAddress())
	assert.Equal(t, []FieldAction{src, dst}, pctx.AppliedActions())
	assert.True(t, pctx.Cache().Modified())
}

func TestApplyIdempotent(t *testing.T) {
	act, err := NewSetInet4SrcAction("172.16.0.1")
	require.NoError(t, err)
	pctx := udpContext(t)

	assert.True(t, act.Apply(pctx))
	assert.True(t, act.Apply(pctx))
	assert.Equal(t, net.IP{172, 16, 0, 1}, pctx.Inet4Packet().SourceAddress().To4())
	assert.Len(t, pctx.AppliedActions(), 1)
}

func TestApplySupersedes(t *testing.T) {
	first, _ := NewSetDscpAction(10)
	pcp, _ := NewSetVlanPcpAction(3)
	second, _ := NewSetDscpAction(20)
	pctx := tcpContext(t)

	first.Apply(pctx)
	pcp.Apply(pctx)
	second.Apply(pctx)

	acts := pctx.AppliedActions()
	require.Len(t, acts, 2)
	assert.Same(t, second, acts[0])
	assert.Same(t, pcp, acts[1])
	assert.Equal(t, uint8(20), pctx.Inet4Packet().Dscp())
}

func TestICMPNoOp(t *testing.T) {
	icmpType, _ := NewSetIcmpTypeAction(3)
	icmpCode, _ := NewSetIcmpCodeAction(1)

	for name, pctx := range map[string]*PacketContext{
		"tcp": tcpContext(t),
		"udp": udpContext(t),
		"arp": arpContext(t),
	} {
		assert.False(t, icmpType.Apply(pctx), name)
		assert.False(t, icmpCode.Apply(pctx), name)
		assert.Empty(t, pctx.AppliedActions(), name)
		assert.Empty(t, pctx.MatchFields(), name)
		assert.False(t, pctx.Cache().Modified(), name)
	}

	pctx := icmpContext(t)
	assert.True(t, icmpType.Apply(pctx))
	assert.True(t, icmpCode.Apply(pctx))
	icmp := pctx.L4Packet().(*pktcache.ICMPPacket)
	assert.Equal(t, uint8(3), icmp.Type())
	assert.Equal(t, uint8(1), icmp.Code())
	assert.Equal(t, []MatchType{MatchDlType, MatchNwProto}, pctx.MatchFields())
}

func TestInet4NoOpOnARP(t *testing.T) {
	dscp, _ := NewSetDscpAction(1)
	src, _ := NewSetInet4SrcAction("10.9.9.9")
	pctx := arpContext(t)

	assert.False(t, dscp.Apply(pctx))
	assert.False(t, src.Apply(pctx))
	assert.Empty(t, pctx.AppliedActions())
}

func TestActionEqual(t *testing.T) {
	a, _ := NewSetDscpAction(1)
	b, _ := NewSetDscpAction(1)
	c, _ := NewSetDscpAction(2)
	d, _ := NewSetIcmpCodeAction(1)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.Equal(t, "set-dscp(1)", a.String())
}
