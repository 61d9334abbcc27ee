package config

import (
	"bytes"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/contiv/flowfilter/flowfilter"
)

// Config is the YAML document describing flow conditions and the filter
// lists of every interface.
type Config struct {
	LogLevel   string             `yaml:"log-level"`
	Conditions []ConditionConfig  `yaml:"conditions"`
	Filters    []FilterListConfig `yaml:"filters"`
}

type ConditionConfig struct {
	Name    string        `yaml:"name"`
	Matches []MatchConfig `yaml:"matches"`
}

type MatchConfig struct {
	Index  int          `yaml:"index"`
	InPort *uint32      `yaml:"in-port"`
	Ether  *EtherConfig `yaml:"ether"`
	Inet4  *Inet4Config `yaml:"inet4"`
	TCP    *PortsConfig `yaml:"tcp"`
	UDP    *PortsConfig `yaml:"udp"`
	ICMP   *ICMPConfig  `yaml:"icmp"`
}

type EtherConfig struct {
	Src          string  `yaml:"src"`
	Dst          string  `yaml:"dst"`
	Type         *uint16 `yaml:"type"`
	VlanID       *uint16 `yaml:"vlan-id"`
	VlanPriority *uint8  `yaml:"vlan-pcp"`
}

type Inet4Config struct {
	Src      string `yaml:"src"`
	Dst      string `yaml:"dst"`
	Protocol *uint8 `yaml:"protocol"`
	Dscp     *uint8 `yaml:"dscp"`
}

// PortsConfig holds a port or a port range such as "1024-65535".
type PortsConfig struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
}

type ICMPConfig struct {
	Type *uint8 `yaml:"type"`
	Code *uint8 `yaml:"code"`
}

type FilterListConfig struct {
	Interface string        `yaml:"interface"`
	Direction string        `yaml:"direction"`
	Entries   []EntryConfig `yaml:"entries"`
}

type EntryConfig struct {
	Index     int             `yaml:"index"`
	Condition string          `yaml:"condition"`
	Type      string          `yaml:"type"`
	Actions   []ActionConfig  `yaml:"actions"`
	Redirect  *RedirectConfig `yaml:"redirect"`
}

type ActionConfig struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type RedirectConfig struct {
	Interface string `yaml:"interface"`
	Direction string `yaml:"direction"`
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return cfg, nil
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return &cfg, nil
}

// BuildConditions validates and creates the configured flow conditions.
func (c *Config) BuildConditions() ([]*flowfilter.FlowCondition, error) {
	names := make(map[string]bool)
	conds := make([]*flowfilter.FlowCondition, 0, len(c.Conditions))
	for _, cc := range c.Conditions {
		if names[cc.Name] {
			return nil, flowfilter.BadRequestf("duplicate flow condition: %q", cc.Name)
		}
		names[cc.Name] = true

		matches := make([]*flowfilter.FlowMatch, 0, len(cc.Matches))
		for _, mc := range cc.Matches {
			m, err := mc.build()
			if err != nil {
				return nil, errors.Wrapf(err, "condition %s: flow match %d", cc.Name, mc.Index)
			}
			matches = append(matches, m)
		}
		cond, err := flowfilter.NewFlowCondition(cc.Name, matches...)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (mc *MatchConfig) build() (*flowfilter.FlowMatch, error) {
	m := &flowfilter.FlowMatch{Index: mc.Index, InPort: mc.InPort}
	var err error
	if ec := mc.Ether; ec != nil {
		m.Ether = &flowfilter.EtherMatch{
			EtherType:    ec.Type,
			VlanID:       ec.VlanID,
			VlanPriority: ec.VlanPriority,
		}
		if m.Ether.Src, err = parseMAC(ec.Src); err != nil {
			return nil, err
		}
		if m.Ether.Dst, err = parseMAC(ec.Dst); err != nil {
			return nil, err
		}
	}
	if ic := mc.Inet4; ic != nil {
		m.Inet4 = &flowfilter.Inet4Match{Protocol: ic.Protocol, Dscp: ic.Dscp}
		if m.Inet4.Src, err = parseNetwork(ic.Src); err != nil {
			return nil, err
		}
		if m.Inet4.Dst, err = parseNetwork(ic.Dst); err != nil {
			return nil, err
		}
	}
	if mc.TCP != nil {
		if m.TCP, err = mc.TCP.build(); err != nil {
			return nil, err
		}
	}
	if mc.UDP != nil {
		if m.UDP, err = mc.UDP.build(); err != nil {
			return nil, err
		}
	}
	if mc.ICMP != nil {
		m.ICMP = &flowfilter.ICMPMatch{Type: mc.ICMP.Type, Code: mc.ICMP.Code}
	}
	return m, nil
}

func parseMAC(s string) (net.HardwareAddr, error) {
	if s == "" {
		return nil, nil
	}
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, flowfilter.BadRequestf("invalid MAC address: %q", s)
	}
	return mac, nil
}

// parseNetwork accepts an IPv4 address or an IPv4 network in CIDR notation.
func parseNetwork(s string) (*net.IPNet, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.Contains(s, "/") {
		s += "/32"
	}
	ip, nw, err := net.ParseCIDR(s)
	if err != nil || ip.To4() == nil {
		return nil, flowfilter.BadRequestf("invalid IPv4 network: %q", s)
	}
	return nw, nil
}

func (pc *PortsConfig) build() (*flowfilter.PortMatch, error) {
	src, err := parsePortRange(pc.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parsePortRange(pc.Dst)
	if err != nil {
		return nil, err
	}
	return &flowfilter.PortMatch{Src: src, Dst: dst}, nil
}

func parsePortRange(s string) (*flowfilter.PortRange, error) {
	if s == "" {
		return nil, nil
	}
	from, to, isRange := strings.Cut(s, "-")
	r := &flowfilter.PortRange{}
	v, err := strconv.ParseUint(strings.TrimSpace(from), 10, 16)
	if err != nil {
		return nil, flowfilter.BadRequestf("invalid port: %q", s)
	}
	r.From = uint16(v)
	if isRange {
		v, err = strconv.ParseUint(strings.TrimSpace(to), 10, 16)
		if err != nil || v == 0 || uint16(v) < r.From {
			return nil, flowfilter.BadRequestf("invalid port range: %q", s)
		}
		r.To = uint16(v)
	}
	return r, nil
}

// BuildFilterLists validates and creates the configured filter lists.
func (c *Config) BuildFilterLists() (map[flowfilter.FilterKey]*flowfilter.FlowFilterList, error) {
	lists := make(map[flowfilter.FilterKey]*flowfilter.FlowFilterList)
	for _, fc := range c.Filters {
		if fc.Interface == "" {
			return nil, flowfilter.BadRequestf("filter list interface cannot be empty")
		}
		dir, err := flowfilter.ParseDirection(fc.Direction)
		if err != nil {
			return nil, errors.Wrapf(err, "filter list %s", fc.Interface)
		}
		key := flowfilter.FilterKey{Interface: fc.Interface, Direction: dir}
		if _, ok := lists[key]; ok {
			return nil, flowfilter.BadRequestf("duplicate filter list: %s", key)
		}

		filters := make([]*flowfilter.FlowFilter, 0, len(fc.Entries))
		for _, ec := range fc.Entries {
			f, err := ec.build()
			if err != nil {
				return nil, errors.Wrapf(err, "filter list %s: entry %d", key, ec.Index)
			}
			filters = append(filters, f)
		}
		list, err := flowfilter.NewFlowFilterList(filters...)
		if err != nil {
			return nil, errors.Wrapf(err, "filter list %s", key)
		}
		lists[key] = list
	}
	return lists, nil
}

func (ec *EntryConfig) build() (*flowfilter.FlowFilter, error) {
	ftype, err := flowfilter.ParseFilterType(ec.Type)
	if err != nil {
		return nil, err
	}
	actions := make([]flowfilter.FieldAction, 0, len(ec.Actions))
	for _, ac := range ec.Actions {
		act, err := flowfilter.NewFieldAction(&flowfilter.ActionSpec{Type: ac.Type, Value: ac.Value})
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}

	if ec.Redirect != nil && ftype != flowfilter.RedirectFilter {
		return nil, flowfilter.BadRequestf("redirect destination is only allowed for redirect filters")
	}
	switch ftype {
	case flowfilter.DropFilter:
		return flowfilter.NewDropFilter(ec.Index, ec.Condition, actions...)
	case flowfilter.RedirectFilter:
		if ec.Redirect == nil {
			return nil, flowfilter.BadRequestf("redirect destination is required")
		}
		dir, err := flowfilter.ParseDirection(ec.Redirect.Direction)
		if err != nil {
			return nil, err
		}
		dest := flowfilter.RedirectDestination{Interface: ec.Redirect.Interface, Direction: dir}
		return flowfilter.NewRedirectFilter(ec.Index, ec.Condition, dest, actions...)
	}
	return flowfilter.NewPassFilter(ec.Index, ec.Condition, actions...)
}

// Apply validates the whole configuration and installs it. Nothing is
// installed if any part is invalid. Every filter must refer to a condition
// that is either configured or already present in conds.
func (c *Config) Apply(conds *flowfilter.ConditionStore, filters *flowfilter.FilterStore) error {
	newConds, err := c.BuildConditions()
	if err != nil {
		return err
	}
	lists, err := c.BuildFilterLists()
	if err != nil {
		return err
	}

	known := make(map[string]bool)
	for _, cond := range newConds {
		known[cond.Name()] = true
	}
	for key, list := range lists {
		for _, f := range list.Filters() {
			if known[f.Condition()] {
				continue
			}
			if _, err := conds.ResolveCondition(f.Condition()); err != nil {
				return errors.Wrapf(err, "filter list %s: entry %d", key, f.Index())
			}
		}
	}

	for _, cond := range newConds {
		if err := conds.PutCondition(cond); err != nil {
			return err
		}
	}
	for key, list := range lists {
		filters.SetFilterList(key, list)
		log.Infof("Flow filter list configured: %s: %d entries", key, list.Len())
	}
	return nil
}
