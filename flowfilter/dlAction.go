package flowfilter

import (
	"bytes"
	"fmt"
	"net"
)

const maxVlanPcp = 7

// checkUnicastMAC accepts only a 48-bit unicast address that is not zero.
func checkUnicastMAC(mac net.HardwareAddr) error {
	if mac == nil {
		return badRequest("MAC address cannot be null")
	}
	if len(mac) != 6 {
		return badRequest("invalid MAC address length: %d", len(mac))
	}
	if bytes.Equal(mac, make(net.HardwareAddr, 6)) {
		return badRequest("zero MAC address cannot be specified")
	}
	if mac[0]&0x1 != 0 {
		// Includes the broadcast address.
		return badRequest("multicast MAC address cannot be specified: %s", mac)
	}
	return nil
}

func copyMAC(mac net.HardwareAddr) net.HardwareAddr {
	c := make(net.HardwareAddr, len(mac))
	copy(c, mac)
	return c
}

// SetDlSrcAction sets the source MAC address.
type SetDlSrcAction struct {
	mac net.HardwareAddr
}

func NewSetDlSrcAction(mac net.HardwareAddr) (*SetDlSrcAction, error) {
	if err := checkUnicastMAC(mac); err != nil {
		return nil, err
	}
	return &SetDlSrcAction{mac: copyMAC(mac)}, nil
}

func (a *SetDlSrcAction) Address() net.HardwareAddr {
	return copyMAC(a.mac)
}

func (a *SetDlSrcAction) Kind() ActionKind {
	return ActionSetDlSrc
}

func (a *SetDlSrcAction) Apply(pctx *PacketContext) bool {
	ether := pctx.EtherPacket()
	if ether == nil {
		return false
	}
	ether.SetSourceAddress(a.mac)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetDlSrcAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetDlSrcAction)
	return ok && bytes.Equal(a.mac, o.mac)
}

func (a *SetDlSrcAction) String() string {
	return fmt.Sprintf("%s(%s)", a.Kind(), a.mac)
}

func (a *SetDlSrcAction) fieldAction() {}

// SetDlDstAction sets the destination MAC address.
type SetDlDstAction struct {
	mac net.HardwareAddr
}

func NewSetDlDstAction(mac net.HardwareAddr) (*SetDlDstAction, error) {
	if err := checkUnicastMAC(mac); err != nil {
		return nil, err
	}
	return &SetDlDstAction{mac: copyMAC(mac)}, nil
}

func (a *SetDlDstAction) Address() net.HardwareAddr {
	return copyMAC(a.mac)
}

func (a *SetDlDstAction) Kind() ActionKind {
	return ActionSetDlDst
}

func (a *SetDlDstAction) Apply(pctx *PacketContext) bool {
	ether := pctx.EtherPacket()
	if ether == nil {
		return false
	}
	ether.SetDestinationAddress(a.mac)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetDlDstAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetDlDstAction)
	return ok && bytes.Equal(a.mac, o.mac)
}

func (a *SetDlDstAction) String() string {
	return fmt.Sprintf("%s(%s)", a.Kind(), a.mac)
}

func (a *SetDlDstAction) fieldAction() {}

// SetVlanPcpAction sets the IEEE 802.1p priority.
type SetVlanPcpAction struct {
	pcp uint8
}

func NewSetVlanPcpAction(pcp int) (*SetVlanPcpAction, error) {
	if err := checkRange(ActionSetVlanPcp, pcp, maxVlanPcp); err != nil {
		return nil, err
	}
	return &SetVlanPcpAction{pcp: uint8(pcp)}, nil
}

func (a *SetVlanPcpAction) Priority() uint8 {
	return a.pcp
}

func (a *SetVlanPcpAction) Kind() ActionKind {
	return ActionSetVlanPcp
}

func (a *SetVlanPcpAction) Apply(pctx *PacketContext) bool {
	ether := pctx.EtherPacket()
	if ether == nil {
		return false
	}
	ether.SetVlanPriority(a.pcp)
	// The flow entry must tell tagged frames from untagged ones.
	pctx.AddMatchField(MatchDlVlan)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetVlanPcpAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetVlanPcpAction)
	return ok && a.pcp == o.pcp
}

func (a *SetVlanPcpAction) String() string {
	return fmt.Sprintf("%s(%d)", a.Kind(), a.pcp)
}

func (a *SetVlanPcpAction) fieldAction() {}
