package ofctrl

import (
	"fmt"
	"net"

	"antrea.io/libOpenflow/openflow15"
	"github.com/contiv/flowfilter/flowfilter"
)

// OFAction is a set-field action of a flow entry.
type OFAction interface {
	GetActionMessage() openflow15.Action
}

type SetSrcMACAction struct {
	MAC net.HardwareAddr
}

func (a *SetSrcMACAction) GetActionMessage() openflow15.Action {
	field := openflow15.NewEthSrcField(a.MAC, nil)
	return openflow15.NewActionSetField(*field)
}

type SetDstMACAction struct {
	MAC net.HardwareAddr
}

func (a *SetDstMACAction) GetActionMessage() openflow15.Action {
	field := openflow15.NewEthDstField(a.MAC, nil)
	return openflow15.NewActionSetField(*field)
}

type SetSrcIPAction struct {
	IP net.IP
}

func (a *SetSrcIPAction) GetActionMessage() openflow15.Action {
	field := openflow15.NewIpv4SrcField(a.IP, nil)
	return openflow15.NewActionSetField(*field)
}

type SetDstIPAction struct {
	IP net.IP
}

func (a *SetDstIPAction) GetActionMessage() openflow15.Action {
	field := openflow15.NewIpv4DstField(a.IP, nil)
	return openflow15.NewActionSetField(*field)
}

type SetDSCPAction struct {
	Value uint8
}

func (a *SetDSCPAction) GetActionMessage() openflow15.Action {
	field := openflow15.NewIpDscpField(a.Value, nil)
	return openflow15.NewActionSetField(*field)
}

// SetICMPTypeAction and SetICMPCodeAction hold the field header looked up
// when they are created.
type SetICMPTypeAction struct {
	Value uint8
	field *openflow15.MatchField
}

func NewSetICMPTypeAction(value uint8) (*SetICMPTypeAction, error) {
	field, err := openflow15.FindFieldHeaderByName("NXM_OF_ICMP_TYPE", false)
	if err != nil {
		return nil, err
	}
	field.Value = &openflow15.IcmpTypeField{Type: value}
	return &SetICMPTypeAction{Value: value, field: field}, nil
}

func (a *SetICMPTypeAction) GetActionMessage() openflow15.Action {
	return openflow15.NewActionSetField(*a.field)
}

type SetICMPCodeAction struct {
	Value uint8
	field *openflow15.MatchField
}

func NewSetICMPCodeAction(value uint8) (*SetICMPCodeAction, error) {
	field, err := openflow15.FindFieldHeaderByName("NXM_OF_ICMP_CODE", false)
	if err != nil {
		return nil, err
	}
	field.Value = &openflow15.IcmpCodeField{Code: value}
	return &SetICMPCodeAction{Value: value, field: field}, nil
}

func (a *SetICMPCodeAction) GetActionMessage() openflow15.Action {
	return openflow15.NewActionSetField(*a.field)
}

type SetVLANPCPAction struct {
	Value uint8
	field *openflow15.MatchField
}

func NewSetVLANPCPAction(value uint8) (*SetVLANPCPAction, error) {
	field, err := vlanPcpField(value)
	if err != nil {
		return nil, err
	}
	return &SetVLANPCPAction{Value: value, field: field}, nil
}

func (a *SetVLANPCPAction) GetActionMessage() openflow15.Action {
	return openflow15.NewActionSetField(*a.field)
}

func vlanPcpField(pcp uint8) (*openflow15.MatchField, error) {
	field, err := openflow15.FindFieldHeaderByName("OXM_OF_VLAN_PCP", false)
	if err != nil {
		return nil, err
	}
	field.Value = &openflow15.ByteArrayField{Data: []byte{pcp}, Length: 1}
	return field, nil
}

// NewOFAction translates an applied field action.
func NewOFAction(act flowfilter.FieldAction) (OFAction, error) {
	switch a := act.(type) {
	case *flowfilter.SetDlSrcAction:
		return &SetSrcMACAction{MAC: a.Address()}, nil
	case *flowfilter.SetDlDstAction:
		return &SetDstMACAction{MAC: a.Address()}, nil
	case *flowfilter.SetInet4SrcAction:
		return &SetSrcIPAction{IP: a.Address()}, nil
	case *flowfilter.SetInet4DstAction:
		return &SetDstIPAction{IP: a.Address()}, nil
	case *flowfilter.SetDscpAction:
		return &SetDSCPAction{Value: a.Dscp()}, nil
	case *flowfilter.SetIcmpTypeAction:
		return NewSetICMPTypeAction(a.Type())
	case *flowfilter.SetIcmpCodeAction:
		return NewSetICMPCodeAction(a.Code())
	case *flowfilter.SetVlanPcpAction:
		return NewSetVLANPCPAction(a.Priority())
	}
	return nil, fmt.Errorf("unsupported flow action: %v", act)
}
