package pktcache

import (
	"net"

	"github.com/google/gopacket/layers"
)

// Inet4Packet is the IPv4 header of a frame.
type Inet4Packet struct {
	cache *Cache
	ip    *layers.IPv4
}

func (p *Inet4Packet) SourceAddress() net.IP {
	return p.ip.SrcIP
}

func (p *Inet4Packet) DestinationAddress() net.IP {
	return p.ip.DstIP
}

func (p *Inet4Packet) Protocol() uint8 {
	return uint8(p.ip.Protocol)
}

// Dscp returns the DSCP field, the upper 6 bits of the TOS octet.
func (p *Inet4Packet) Dscp() uint8 {
	return p.ip.TOS >> 2
}

// SetSourceAddress changes the source address. Addresses that are not IPv4
// are ignored.
func (p *Inet4Packet) SetSourceAddress(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil || p.ip.SrcIP.Equal(v4) {
		return false
	}
	p.ip.SrcIP = append(net.IP(nil), v4...)
	return p.cache.touch(true)
}

// SetDestinationAddress changes the destination address. Addresses that are
// not IPv4 are ignored.
func (p *Inet4Packet) SetDestinationAddress(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil || p.ip.DstIP.Equal(v4) {
		return false
	}
	p.ip.DstIP = append(net.IP(nil), v4...)
	return p.cache.touch(true)
}

// SetDscp changes the DSCP field and keeps the ECN bits.
func (p *Inet4Packet) SetDscp(dscp uint8) bool {
	tos := (dscp&0x3f)<<2 | p.ip.TOS&0x3
	if tos == p.ip.TOS {
		return false
	}
	p.ip.TOS = tos
	return p.cache.touch(true)
}
