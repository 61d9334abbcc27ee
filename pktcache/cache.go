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
package pktcache

// This package keeps decoded views of a raw ethernet frame. Every layer is
// decoded on first access only, and the frame is re-encoded only when the
// modified packet is requested.

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

var ErrNoEthernet = errors.New("frame does not contain an ethernet header")

// Cache wraps one raw frame and its lazily decoded layers.
type Cache struct {
	frame  []byte          // Original frame, never written
	packet gopacket.Packet // Lazy gopacket decoder over a private copy of frame

	ether     *EtherPacket
	etherDone bool
	inet4     *Inet4Packet
	inet4Done bool
	l4        L4Packet
	l4Done    bool

	modified bool   // Set when a setter changed a header field
	encoded  []byte // Re-encoded frame, valid until the next modification
}

// New returns a cache for the given frame. The frame is not copied and must
// not be modified by the caller afterwards.
func New(frame []byte) *Cache {
	return &Cache{frame: frame}
}

// Frame returns the original frame.
func (c *Cache) Frame() []byte {
	return c.frame
}

// Modified returns true if any header field has been changed.
func (c *Cache) Modified() bool {
	return c.modified
}

func (c *Cache) decoded() gopacket.Packet {
	if c.packet == nil {
		// Default decode options copy the frame, so header slices handed out
		// by gopacket never alias the original bytes.
		c.packet = gopacket.NewPacket(c.frame, layers.LayerTypeEthernet, gopacket.Lazy)
	}
	return c.packet
}

// EtherPacket returns the ethernet header, or nil if the frame is not an
// ethernet frame.
func (c *Cache) EtherPacket() *EtherPacket {
	if c.etherDone {
		return c.ether
	}
	c.etherDone = true

	pkt := c.decoded()
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return nil
	}

	var vlan *layers.Dot1Q
	if eth.EthernetType == layers.EthernetTypeDot1Q {
		vlan, ok = pkt.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q)
		if !ok {
			// Truncated VLAN tag.
			return nil
		}
	}
	c.ether = &EtherPacket{cache: c, eth: eth, vlan: vlan}
	return c.ether
}

// Inet4Packet returns the IPv4 header, or nil if the frame does not carry
// an IPv4 packet.
func (c *Cache) Inet4Packet() *Inet4Packet {
	if c.inet4Done {
		return c.inet4
	}
	c.inet4Done = true

	ether := c.EtherPacket()
	if ether == nil || ether.EtherType() != uint16(layers.EthernetTypeIPv4) {
		return nil
	}
	ip, ok := c.decoded().Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil
	}
	c.inet4 = &Inet4Packet{cache: c, ip: ip}
	return c.inet4
}

// L4Packet returns the ICMP, TCP or UDP header carried by the IPv4 packet.
// nil is returned for any other transport, for fragments (the first one
// included) and for frames without IPv4.
func (c *Cache) L4Packet() L4Packet {
	if c.l4Done {
		return c.l4
	}
	c.l4Done = true

	inet4 := c.Inet4Packet()
	if inet4 == nil {
		return nil
	}

	pkt := c.decoded()
	switch inet4.ip.Protocol {
	case layers.IPProtocolICMPv4:
		if icmp, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
			c.l4 = &ICMPPacket{cache: c, icmp: icmp}
		}
	case layers.IPProtocolTCP:
		if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
			c.l4 = &TCPPacket{tcp: tcp}
		}
	case layers.IPProtocolUDP:
		if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			c.l4 = &UDPPacket{udp: udp}
		}
	}
	return c.l4
}

// touch records the result of a setter.
func (c *Cache) touch(changed bool) bool {
	if changed {
		c.modified = true
		c.encoded = nil
	}
	return changed
}

// Bytes returns the frame as it looks after all modifications. The original
// frame is returned as is if nothing has been modified.
func (c *Cache) Bytes() ([]byte, error) {
	if !c.modified {
		return c.frame, nil
	}
	if c.encoded != nil {
		return c.encoded, nil
	}

	ether := c.EtherPacket()
	if ether == nil {
		return nil, ErrNoEthernet
	}

	var (
		payload gopacket.Payload
		stack   []gopacket.SerializableLayer
	)
	stack = ether.serializableLayers()
	payload = ether.payload()

	if inet4 := c.Inet4Packet(); inet4 != nil {
		stack = append(stack, inet4.ip)
		payload = inet4.ip.Payload

		switch l4 := c.L4Packet().(type) {
		case *ICMPPacket:
			stack = append(stack, l4.icmp)
			payload = l4.icmp.Payload
		case *TCPPacket:
			if err := l4.tcp.SetNetworkLayerForChecksum(inet4.ip); err != nil {
				return nil, errors.Wrap(err, "tcp checksum")
			}
			stack = append(stack, l4.tcp)
			payload = l4.tcp.Payload
		case *UDPPacket:
			if err := l4.udp.SetNetworkLayerForChecksum(inet4.ip); err != nil {
				return nil, errors.Wrap(err, "udp checksum")
			}
			stack = append(stack, l4.udp)
			payload = l4.udp.Payload
		}
	}
	stack = append(stack, payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, errors.Wrap(err, "failed to encode modified frame")
	}
	c.encoded = buf.Bytes()
	return c.encoded, nil
}
