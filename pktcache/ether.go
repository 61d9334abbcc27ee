package pktcache

import (
	"bytes"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Vlan ID used for untagged frames.
const VlanNone uint16 = 0

// EtherPacket is the ethernet header of a frame, including an optional
// IEEE 802.1Q tag.
type EtherPacket struct {
	cache *Cache
	eth   *layers.Ethernet
	vlan  *layers.Dot1Q // nil for untagged frames
}

func (p *EtherPacket) SourceAddress() net.HardwareAddr {
	return p.eth.SrcMAC
}

func (p *EtherPacket) DestinationAddress() net.HardwareAddr {
	return p.eth.DstMAC
}

// EtherType returns the ethernet type of the payload. The type inside the
// VLAN tag is returned for tagged frames.
func (p *EtherPacket) EtherType() uint16 {
	if p.vlan != nil {
		return uint16(p.vlan.Type)
	}
	return uint16(p.eth.EthernetType)
}

// Tagged returns true if the frame carries an 802.1Q tag.
func (p *EtherPacket) Tagged() bool {
	return p.vlan != nil
}

// VlanID returns the VLAN ID, or VlanNone for untagged frames.
func (p *EtherPacket) VlanID() uint16 {
	if p.vlan == nil {
		return VlanNone
	}
	return p.vlan.VLANIdentifier
}

// VlanPriority returns the 802.1p priority, or 0 for untagged frames.
func (p *EtherPacket) VlanPriority() uint8 {
	if p.vlan == nil {
		return 0
	}
	return p.vlan.Priority
}

// IsMulticast returns true if the destination is a multicast or broadcast
// address.
func (p *EtherPacket) IsMulticast() bool {
	dst := p.eth.DstMAC
	return len(dst) > 0 && dst[0]&0x1 != 0
}

// SetSourceAddress changes the source MAC address. It returns true if the
// address has been changed.
func (p *EtherPacket) SetSourceAddress(mac net.HardwareAddr) bool {
	if bytes.Equal(p.eth.SrcMAC, mac) {
		return false
	}
	p.eth.SrcMAC = copyMAC(mac)
	return p.cache.touch(true)
}

// SetDestinationAddress changes the destination MAC address. It returns
// true if the address has been changed.
func (p *EtherPacket) SetDestinationAddress(mac net.HardwareAddr) bool {
	if bytes.Equal(p.eth.DstMAC, mac) {
		return false
	}
	p.eth.DstMAC = copyMAC(mac)
	return p.cache.touch(true)
}

// SetVlanPriority changes the 802.1p priority. A priority tag with VLAN ID 0
// is added to an untagged frame when a non-zero priority is set.
func (p *EtherPacket) SetVlanPriority(pcp uint8) bool {
	if p.vlan == nil {
		if pcp == 0 {
			return false
		}
		p.vlan = &layers.Dot1Q{
			Priority:       pcp,
			VLANIdentifier: VlanNone,
			Type:           p.eth.EthernetType,
		}
		return p.cache.touch(true)
	}
	if p.vlan.Priority == pcp {
		return false
	}
	p.vlan.Priority = pcp
	return p.cache.touch(true)
}

func (p *EtherPacket) serializableLayers() []gopacket.SerializableLayer {
	eth := *p.eth
	if p.vlan == nil {
		return []gopacket.SerializableLayer{&eth}
	}
	eth.EthernetType = layers.EthernetTypeDot1Q
	vlan := *p.vlan
	return []gopacket.SerializableLayer{&eth, &vlan}
}

func (p *EtherPacket) payload() gopacket.Payload {
	if p.vlan != nil && len(p.vlan.Contents) > 0 {
		return p.vlan.Payload
	}
	return p.eth.Payload
}

func copyMAC(mac net.HardwareAddr) net.HardwareAddr {
	c := make(net.HardwareAddr, len(mac))
	copy(c, mac)
	return c
}
