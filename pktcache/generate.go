package pktcache

import (
	"math/rand"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame describes a frame to be built from individual headers. At most one
// of the ARP or IPv4 headers, and at most one transport header, is used.
type Frame struct {
	SrcMAC       net.HardwareAddr
	DstMAC       net.HardwareAddr
	Tagged       bool
	VlanID       uint16
	VlanPriority uint8

	ARPHeader  *layers.ARP
	IPHeader   *layers.IPv4
	TCPHeader  *layers.TCP
	UDPHeader  *layers.UDP
	ICMPHeader *layers.ICMPv4
	Payload    []byte
}

// Serialize encodes the frame with lengths and checksums computed.
func (f *Frame) Serialize() ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC: f.SrcMAC,
		DstMAC: f.DstMAC,
	}
	stack := []gopacket.SerializableLayer{eth}

	var ethType layers.EthernetType
	if f.ARPHeader != nil {
		ethType = layers.EthernetTypeARP
	} else {
		ethType = layers.EthernetTypeIPv4
	}
	if f.Tagged {
		eth.EthernetType = layers.EthernetTypeDot1Q
		stack = append(stack, &layers.Dot1Q{
			Priority:       f.VlanPriority,
			VLANIdentifier: f.VlanID,
			Type:           ethType,
		})
	} else {
		eth.EthernetType = ethType
	}

	if f.ARPHeader != nil {
		stack = append(stack, f.ARPHeader)
	} else if f.IPHeader != nil {
		stack = append(stack, f.IPHeader)
		switch {
		case f.TCPHeader != nil:
			f.IPHeader.Protocol = layers.IPProtocolTCP
			if err := f.TCPHeader.SetNetworkLayerForChecksum(f.IPHeader); err != nil {
				return nil, err
			}
			stack = append(stack, f.TCPHeader)
		case f.UDPHeader != nil:
			f.IPHeader.Protocol = layers.IPProtocolUDP
			if err := f.UDPHeader.SetNetworkLayerForChecksum(f.IPHeader); err != nil {
				return nil, err
			}
			stack = append(stack, f.UDPHeader)
		case f.ICMPHeader != nil:
			f.IPHeader.Protocol = layers.IPProtocolICMPv4
			stack = append(stack, f.ICMPHeader)
		}
	}
	stack = append(stack, gopacket.Payload(f.Payload))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func GenerateIPv4Header(srcIP, dstIP net.IP) *layers.IPv4 {
	return &layers.IPv4{
		Version: 4,
		IHL:     5,
		Id:      uint16(rand.Int()),
		TTL:     64,
		SrcIP:   srcIP.To4(),
		DstIP:   dstIP.To4(),
	}
}

func GenerateTCPFrame(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, srcPort, dstPort uint16) *Frame {
	return &Frame{
		SrcMAC:   srcMAC,
		DstMAC:   dstMAC,
		IPHeader: GenerateIPv4Header(srcIP, dstIP),
		TCPHeader: &layers.TCP{
			SrcPort: layers.TCPPort(srcPort),
			DstPort: layers.TCPPort(dstPort),
			Seq:     rand.Uint32(),
			SYN:     true,
			Window:  65535,
		},
	}
}

func GenerateUDPFrame(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, srcPort, dstPort uint16) *Frame {
	return &Frame{
		SrcMAC:   srcMAC,
		DstMAC:   dstMAC,
		IPHeader: GenerateIPv4Header(srcIP, dstIP),
		UDPHeader: &layers.UDP{
			SrcPort: layers.UDPPort(srcPort),
			DstPort: layers.UDPPort(dstPort),
		},
	}
}

// GenerateICMPFrame returns an echo request unless type and code are given.
func GenerateICMPFrame(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, icmpType, icmpCode *uint8) *Frame {
	t := uint8(layers.ICMPv4TypeEchoRequest)
	if icmpType != nil {
		t = *icmpType
	}
	var code uint8
	if icmpCode != nil {
		code = *icmpCode
	}
	return &Frame{
		SrcMAC:   srcMAC,
		DstMAC:   dstMAC,
		IPHeader: GenerateIPv4Header(srcIP, dstIP),
		ICMPHeader: &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(t, code),
			Id:       uint16(rand.Uint32()),
			Seq:      1,
		},
	}
}

// GenerateARPRequest returns a broadcast ARP request for dstIP.
func GenerateARPRequest(srcMAC net.HardwareAddr, srcIP, dstIP net.IP) *Frame {
	return &Frame{
		SrcMAC: srcMAC,
		DstMAC: layers.EthernetBroadcast,
		ARPHeader: &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: srcIP.To4(),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    dstIP.To4(),
		},
	}
}
