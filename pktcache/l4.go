package pktcache

import (
	"github.com/google/gopacket/layers"
)

// L4Packet is a transport header supported by the cache. It is one of
// *ICMPPacket, *TCPPacket or *UDPPacket.
type L4Packet interface {
	Protocol() uint8
}

// ICMPPacket is an ICMPv4 header.
type ICMPPacket struct {
	cache *Cache
	icmp  *layers.ICMPv4
}

func (p *ICMPPacket) Protocol() uint8 {
	return uint8(layers.IPProtocolICMPv4)
}

func (p *ICMPPacket) Type() uint8 {
	return p.icmp.TypeCode.Type()
}

func (p *ICMPPacket) Code() uint8 {
	return p.icmp.TypeCode.Code()
}

func (p *ICMPPacket) SetType(t uint8) bool {
	if p.Type() == t {
		return false
	}
	p.icmp.TypeCode = layers.CreateICMPv4TypeCode(t, p.Code())
	return p.cache.touch(true)
}

func (p *ICMPPacket) SetCode(code uint8) bool {
	if p.Code() == code {
		return false
	}
	p.icmp.TypeCode = layers.CreateICMPv4TypeCode(p.Type(), code)
	return p.cache.touch(true)
}

// TCPPacket is a TCP header. Ports are read only.
type TCPPacket struct {
	tcp *layers.TCP
}

func (p *TCPPacket) Protocol() uint8 {
	return uint8(layers.IPProtocolTCP)
}

func (p *TCPPacket) SourcePort() uint16 {
	return uint16(p.tcp.SrcPort)
}

func (p *TCPPacket) DestinationPort() uint16 {
	return uint16(p.tcp.DstPort)
}

// UDPPacket is a UDP header. Ports are read only.
type UDPPacket struct {
	udp *layers.UDP
}

func (p *UDPPacket) Protocol() uint8 {
	return uint8(layers.IPProtocolUDP)
}

func (p *UDPPacket) SourcePort() uint16 {
	return uint16(p.udp.SrcPort)
}

func (p *UDPPacket) DestinationPort() uint16 {
	return uint16(p.udp.DstPort)
}
