package flowfilter

import (
	"fmt"

	"github.com/contiv/flowfilter/pktcache"
)

const maxIcmpValue = 255

func icmpPacket(pctx *PacketContext) *pktcache.ICMPPacket {
	icmp, _ := pctx.L4Packet().(*pktcache.ICMPPacket)
	return icmp
}

// SetIcmpTypeAction sets the ICMPv4 type.
type SetIcmpTypeAction struct {
	icmpType uint8
}

func NewSetIcmpTypeAction(icmpType int) (*SetIcmpTypeAction, error) {
	if err := checkRange(ActionSetIcmpType, icmpType, maxIcmpValue); err != nil {
		return nil, err
	}
	return &SetIcmpTypeAction{icmpType: uint8(icmpType)}, nil
}

func (a *SetIcmpTypeAction) Type() uint8 {
	return a.icmpType
}

func (a *SetIcmpTypeAction) Kind() ActionKind {
	return ActionSetIcmpType
}

func (a *SetIcmpTypeAction) Apply(pctx *PacketContext) bool {
	icmp := icmpPacket(pctx)
	if icmp == nil {
		return false
	}
	icmp.SetType(a.icmpType)
	pctx.AddMatchField(MatchDlType)
	pctx.AddMatchField(MatchNwProto)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetIcmpTypeAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetIcmpTypeAction)
	return ok && a.icmpType == o.icmpType
}

func (a *SetIcmpTypeAction) String() string {
	return fmt.Sprintf("%s(%d)", a.Kind(), a.icmpType)
}

func (a *SetIcmpTypeAction) fieldAction() {}

// SetIcmpCodeAction sets the ICMPv4 code.
type SetIcmpCodeAction struct {
	code uint8
}

func NewSetIcmpCodeAction(code int) (*SetIcmpCodeAction, error) {
	if err := checkRange(ActionSetIcmpCode, code, maxIcmpValue); err != nil {
		return nil, err
	}
	return &SetIcmpCodeAction{code: uint8(code)}, nil
}

func (a *SetIcmpCodeAction) Code() uint8 {
	return a.code
}

func (a *SetIcmpCodeAction) Kind() ActionKind {
	return ActionSetIcmpCode
}

func (a *SetIcmpCodeAction) Apply(pctx *PacketContext) bool {
	icmp := icmpPacket(pctx)
	if icmp == nil {
		return false
	}
	icmp.SetCode(a.code)
	pctx.AddMatchField(MatchDlType)
	pctx.AddMatchField(MatchNwProto)
	pctx.addFilterAction(a)
	logApplied(a, pctx)
	return true
}

func (a *SetIcmpCodeAction) Equal(other FieldAction) bool {
	o, ok := other.(*SetIcmpCodeAction)
	return ok && a.code == o.code
}

func (a *SetIcmpCodeAction) String() string {
	return fmt.Sprintf("%s(%d)", a.Kind(), a.code)
}

func (a *SetIcmpCodeAction) fieldAction() {}
