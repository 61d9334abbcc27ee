package ofctrl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"antrea.io/libOpenflow/openflow15"
	"antrea.io/libOpenflow/util"
)

// Names of the match fields a compiled flow entry can carry
var fieldNickNames = map[string]string{
	"OXM_OF_IN_PORT":   "in_port",
	"OXM_OF_ETH_DST":   "dl_dst",
	"OXM_OF_ETH_SRC":   "dl_src",
	"OXM_OF_ETH_TYPE":  "dl_type",
	"OXM_OF_VLAN_VID":  "dl_vlan",
	"OXM_OF_VLAN_PCP":  "dl_vlan_pcp",
	"OXM_OF_IP_DSCP":   "ip_dscp",
	"OXM_OF_IP_PROTO":  "nw_proto",
	"OXM_OF_IPV4_SRC":  "nw_src",
	"OXM_OF_IPV4_DST":  "nw_dst",
	"OXM_OF_TCP_SRC":   "tcp_src",
	"OXM_OF_TCP_DST":   "tcp_dst",
	"OXM_OF_UDP_SRC":   "udp_src",
	"OXM_OF_UDP_DST":   "udp_dst",
	"NXM_OF_ICMP_TYPE": "icmp_type",
	"NXM_OF_ICMP_CODE": "icmp_code",
}

type fieldKey struct {
	class uint16
	field uint8
}

var (
	fieldNamesOnce sync.Once
	fieldNames     map[fieldKey][2]string
)

func getFieldNames(mf *openflow15.MatchField) (string, string) {
	fieldNamesOnce.Do(func() {
		fieldNames = make(map[fieldKey][2]string)
		for name, nickName := range fieldNickNames {
			hdr, err := openflow15.FindFieldHeaderByName(name, false)
			if err != nil {
				continue
			}
			fieldNames[fieldKey{hdr.Class, hdr.Field}] = [2]string{name, nickName}
		}
	})
	names, ok := fieldNames[fieldKey{mf.Class, mf.Field}]
	if !ok {
		return "", fmt.Sprintf("field(%d:%d)", mf.Class, mf.Field)
	}
	return names[0], names[1]
}

type MatchField struct {
	*openflow15.MatchField
	nickName string
	name     string
}

func NewMatchField(mf *openflow15.MatchField) *MatchField {
	m := &MatchField{
		MatchField: mf,
	}
	m.name, m.nickName = getFieldNames(mf)
	return m
}

func (m *MatchField) GetNickName() string {
	return m.nickName
}

func (m *MatchField) GetName() string {
	return m.name
}

func (m *MatchField) GetValue() interface{} {
	switch v := m.Value.(type) {
	case *openflow15.InPortField:
		return v.InPort
	case *openflow15.EthDstField:
		return v.EthDst
	case *openflow15.EthSrcField:
		return v.EthSrc
	case *openflow15.EthTypeField:
		return v.EthType
	case *openflow15.VlanIdField:
		return v.VlanId
	case *openflow15.IpDscpField:
		value, _ := getUint8(m.Value)
		return value
	case *openflow15.IpProtoField:
		value, _ := getUint8(m.Value)
		return value
	case *openflow15.Ipv4SrcField:
		return v.Ipv4Src
	case *openflow15.Ipv4DstField:
		return v.Ipv4Dst
	case *openflow15.PortField:
		value, _ := getUint16(m.Value)
		return value
	case *openflow15.IcmpTypeField:
		return v.Type
	case *openflow15.IcmpCodeField:
		return v.Code
	case *openflow15.ByteArrayField:
		if len(v.Data) == 1 {
			return v.Data[0]
		}
		return v.Data
	}
	return nil
}

func (m *MatchField) String() string {
	switch v := m.GetValue().(type) {
	case uint16:
		if m.nickName == "dl_type" {
			return fmt.Sprintf("%s=0x%04x", m.nickName, v)
		}
		if m.nickName == "dl_vlan" {
			return fmt.Sprintf("%s=%d", m.nickName, v&0x0fff)
		}
	}
	return fmt.Sprintf("%s=%v", m.nickName, m.GetValue())
}

// Matchers gives access to the fields of a flow-mod match by name.
type Matchers struct {
	matches []*MatchField
}

func NewMatchers(match *openflow15.Match) *Matchers {
	matches := make([]*MatchField, 0, len(match.Fields))
	for i := range match.Fields {
		matches = append(matches, NewMatchField(&match.Fields[i]))
	}
	return &Matchers{matches: matches}
}

func (m *Matchers) GetMatch(class uint16, field uint8) *MatchField {
	for _, m := range m.matches {
		if m.Class == class && m.Field == field {
			return m
		}
	}
	return nil
}

func (m *Matchers) GetMatchByName(name string) *MatchField {
	mfHeader, err := openflow15.FindFieldHeaderByName(name, false)
	if err != nil {
		return nil
	}
	return m.GetMatch(mfHeader.Class, mfHeader.Field)
}

func (m *Matchers) Len() int {
	return len(m.matches)
}

func (m *Matchers) String() string {
	fields := make([]string, len(m.matches))
	for i, mf := range m.matches {
		fields[i] = mf.String()
	}
	return strings.Join(fields, ",")
}

func getUint8(value util.Message) (uint8, error) {
	data, err := value.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, errors.New("the field value has wrong size to translate to uint8")
	}
	return data[0], nil
}

func getUint16(value util.Message) (uint16, error) {
	data, err := value.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, errors.New("the field value has wrong size to translate to uint16")
	}
	return binary.BigEndian.Uint16(data), nil
}
