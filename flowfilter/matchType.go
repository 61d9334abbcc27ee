package flowfilter

// MatchType identifies a match dimension of a hardware flow entry.
type MatchType uint

const (
	MatchInPort MatchType = iota
	MatchDlSrc
	MatchDlDst
	MatchDlType
	MatchDlVlan
	MatchDlVlanPcp
	MatchNwSrc
	MatchNwDst
	MatchNwProto
	MatchNwDscp
	MatchTpSrc
	MatchTpDst
	MatchIcmpType
	MatchIcmpCode

	numMatchTypes
)

var matchTypeNames = [numMatchTypes]string{
	"in_port",
	"dl_src",
	"dl_dst",
	"dl_type",
	"dl_vlan",
	"dl_vlan_pcp",
	"nw_src",
	"nw_dst",
	"nw_proto",
	"ip_dscp",
	"tp_src",
	"tp_dst",
	"icmp_type",
	"icmp_code",
}

func (t MatchType) String() string {
	if t < numMatchTypes {
		return matchTypeNames[t]
	}
	return "unknown"
}
