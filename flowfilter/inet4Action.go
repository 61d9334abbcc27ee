package flowfilter

import (
	"fmt"
	"net"
	"strings"
)

const maxDscp = 63

// parseInet4 accepts only an IPv4 address in dotted decimal notation.
func parseInet4(addr string) (net.IP, error) {
	if addr == "" {
		return nil, badRequest("IP address cannot be empty")
	}
	if strings.Contains(addr, ":") {
		return nil, badRequest("not an IPv4 address: %q", addr)
	}
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return nil, badRequest("invalid IP address: %q", addr)
	}
	return ip, nil
}

// SetInet4SrcAction sets the IPv4 source address.
type SetInet4SrcAction struct {
	ip net.IP
}

func NewSetInet4SrcAction(addr string) (*SetInet4SrcAction, error) {
	ip, err := parseInet4(addr)
	if err != nil {
		return nil, err
	}
	return &SetInet4SrcAction{ip: ip}, nil
}

func (a *SetInet4SrcAction) Address() net.IP {
	return append(net.IP(nil), a.ip...)
}

func (a *SetInet4SrcAction) Kind() ActionKind {
	return ActionSetInet4Src
}

func (a *SetInet4SrcAction) Apply(pctx *PacketContext) bool {
	inet4 := pctx.Inet4Packet()
	if inet4 == nil {
		return false
	}
	inet4.SetSourceAddress(a.ip)
	pctx.AddMatchField(MatchDlType)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetInet4SrcAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetInet4SrcAction)
	return ok && a.ip.Equal(o.ip)
}

func (a *SetInet4SrcAction) String() string {
	return fmt.Sprintf("%s(%s)", a.Kind(), a.ip)
}

func (a *SetInet4SrcAction) fieldAction() {}

// SetInet4DstAction sets the IPv4 destination address.
type SetInet4DstAction struct {
	ip net.IP
}

func NewSetInet4DstAction(addr string) (*SetInet4DstAction, error) {
	ip, err := parseInet4(addr)
	if err != nil {
		return nil, err
	}
	return &SetInet4DstAction{ip: ip}, nil
}

func (a *SetInet4DstAction) Address() net.IP {
	return append(net.IP(nil), a.ip...)
}

func (a *SetInet4DstAction) Kind() ActionKind {
	return ActionSetInet4Dst
}

func (a *SetInet4DstAction) Apply(pctx *PacketContext) bool {
	inet4 := pctx.Inet4Packet()
	if inet4 == nil {
		return false
	}
	inet4.SetDestinationAddress(a.ip)
	pctx.AddMatchField(MatchDlType)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetInet4DstAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetInet4DstAction)
	return ok && a.ip.Equal(o.ip)
}

func (a *SetInet4DstAction) String() string {
	return fmt.Sprintf("%s(%s)", a.Kind(), a.ip)
}

func (a *SetInet4DstAction) fieldAction() {}

// SetDscpAction sets the DSCP field of the IPv4 header.
type SetDscpAction struct {
	dscp uint8
}

func NewSetDscpAction(dscp int) (*SetDscpAction, error) {
	if err := checkRange(ActionSetDscp, dscp, maxDscp); err != nil {
		return nil, err
	}
	return &SetDscpAction{dscp: uint8(dscp)}, nil
}

func (a *SetDscpAction) Dscp() uint8 {
	return a.dscp
}

func (a *SetDscpAction) Kind() ActionKind {
	return ActionSetDscp
}

func (a *SetDscpAction) Apply(pctx *PacketContext) bool {
	inet4 := pctx.Inet4Packet()
	if inet4 == nil {
		return false
	}
	inet4.SetDscp(a.dscp)
	pctx.AddMatchField(MatchDlType)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetDscpAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetDscpAction)
	return ok && a.dscp == o.dscp
}

func (a *SetDscpAction) String() string {
	return fmt.Sprintf("%s(%d)", a.Kind(), a.dscp)
}

func (a *SetDscpAction) fieldAction() {}
