package ofctrl

import (
	"antrea.io/libOpenflow/openflow15"
)

// This file implements the forwarding graph elements a compiled flow entry
// can lead to.

type FgraphElem interface {
	// Type of fw graph element
	Type() string

	// Get the instruction set, nil for drop
	GetFlowInstr() openflow15.Instruction
}

type Output struct {
	outputType string // drop, normal or port
	portNo     uint32
}

// Fgraph element type for the output
func (self *Output) Type() string {
	return "output"
}

func (self *Output) OutputType() string {
	return self.outputType
}

func (self *Output) PortNo() uint32 {
	return self.portNo
}

// instruction set for output element
func (self *Output) GetFlowInstr() openflow15.Instruction {
	if self.outputType == "drop" {
		return nil
	}
	instr := openflow15.NewInstrApplyActions()
	_ = instr.AddAction(openflow15.NewActionOutput(self.portNo), false)
	return instr
}

func NewDropElem() *Output {
	return &Output{outputType: "drop", portNo: openflow15.P_ANY}
}

// NewNormalLookup forwards packets with the normal L2/L3 processing of the
// switch.
func NewNormalLookup() *Output {
	return &Output{outputType: "normal", portNo: openflow15.P_NORMAL}
}

func NewOutputPort(portNo uint32) *Output {
	return &Output{outputType: "port", portNo: portNo}
}
