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
package flowfilter

import (
	"net"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ActionKind identifies the header field rewritten by a field action.
type ActionKind int

const (
	ActionSetDlSrc ActionKind = iota
	ActionSetDlDst
	ActionSetInet4Src
	ActionSetInet4Dst
	ActionSetDscp
	ActionSetIcmpType
	ActionSetIcmpCode
	ActionSetVlanPcp
)

var actionKindNames = map[ActionKind]string{
	ActionSetDlSrc:    "set-dl-src",
	ActionSetDlDst:    "set-dl-dst",
	ActionSetInet4Src: "set-inet4-src",
	ActionSetInet4Dst: "set-inet4-dst",
	ActionSetDscp:     "set-dscp",
	ActionSetIcmpType: "set-icmp-type",
	ActionSetIcmpCode: "set-icmp-code",
	ActionSetVlanPcp:  "set-vlan-pcp",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseActionKind converts the name of an action kind.
func ParseActionKind(name string) (ActionKind, error) {
	for k, n := range actionKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, badRequest("unknown flow action type: %q", name)
}

// FieldAction is a validated rewrite of a single header field. The set of
// implementations is closed: it is defined by the Action* kinds.
type FieldAction interface {
	Kind() ActionKind

	// Apply rewrites the field in the packet and records the action in the
	// context. false is returned, and nothing is recorded, if the packet
	// does not contain the target header.
	Apply(pctx *PacketContext) bool

	Equal(other FieldAction) bool
	String() string

	fieldAction()
}

// ActionSpec is the configured form of a field action.
type ActionSpec struct {
	Type  string
	Value string
}

// NewFieldAction validates spec and returns the field action it describes.
func NewFieldAction(spec *ActionSpec) (FieldAction, error) {
	if spec == nil {
		return nil, errNullAction
	}
	kind, err := ParseActionKind(spec.Type)
	if err != nil {
		return nil, err
	}

	value := strings.TrimSpace(spec.Value)
	switch kind {
	case ActionSetDlSrc, ActionSetDlDst:
		mac, err := net.ParseMAC(value)
		if err != nil {
			return nil, badRequest("invalid MAC address: %q", spec.Value)
		}
		if kind == ActionSetDlSrc {
			return wrapAction(NewSetDlSrcAction(mac))
		}
		return wrapAction(NewSetDlDstAction(mac))

	case ActionSetInet4Src:
		return wrapAction(NewSetInet4SrcAction(value))
	case ActionSetInet4Dst:
		return wrapAction(NewSetInet4DstAction(value))
	}

	v, err := strconv.Atoi(value)
	if err != nil {
		return nil, badRequest("%s: invalid value: %q", kind, spec.Value)
	}
	switch kind {
	case ActionSetDscp:
		return wrapAction(NewSetDscpAction(v))
	case ActionSetIcmpType:
		return wrapAction(NewSetIcmpTypeAction(v))
	case ActionSetIcmpCode:
		return wrapAction(NewSetIcmpCodeAction(v))
	case ActionSetVlanPcp:
		return wrapAction(NewSetVlanPcpAction(v))
	}
	return nil, badRequest("unsupported flow action type: %s", kind)
}

// wrapAction keeps a nil action pointer from turning into a non-nil
// interface value.
func wrapAction(act FieldAction, err error) (FieldAction, error) {
	if err != nil {
		return nil, err
	}
	return act, nil
}

func checkRange(kind ActionKind, v, max int) error {
	if v < 0 || v > max {
		return badRequest("%s: value out of range [0, %d]: %d", kind, max, v)
	}
	return nil
}

func logApplied(act FieldAction, pctx *PacketContext) {
	log.Debugf("flow action applied: %s, in_port=%d", act, pctx.InPort())
}
