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

// ffeval runs a single frame through the configured flow filters and prints
// the outcome together with the flow entry compiled from it.
package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"antrea.io/libOpenflow/openflow15"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/contiv/flowfilter/config"
	"github.com/contiv/flowfilter/flowfilter"
	"github.com/contiv/flowfilter/ofctrl"
	"github.com/contiv/flowfilter/pktcache"
)

var (
	sampleSrcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	sampleDstMAC = net.HardwareAddr{0x00, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	sampleSrcIP  = net.IPv4(10, 0, 0, 1)
	sampleDstIP  = net.IPv4(10, 0, 0, 2)
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		configPath   string
		iface        string
		direction    string
		inPort       uint32
		flooding     bool
		frameHex     string
		sample       string
		logLevel     string
		tableID      uint8
		priority     uint16
		outPort      uint32
		redirects    map[string]string
		printMetrics bool
	)
	flag.StringVarP(&configPath, "config", "c", "", "Flow filter configuration file.")
	flag.StringVarP(&iface, "interface", "i", "", "Interface whose filter list is evaluated.")
	flag.StringVarP(&direction, "direction", "d", "in", "Direction of the filter list (in or out).")
	flag.Uint32Var(&inPort, "in-port", 1, "Switch port the frame was received on.")
	flag.BoolVar(&flooding, "flooding", false, "Evaluate the frame as a flooded replica.")
	flag.StringVar(&frameHex, "frame", "", "Ethernet frame in hex.")
	flag.StringVar(&sample, "sample", "tcp", "Sample frame to evaluate if --frame is not set (tcp, udp, icmp or arp).")
	flag.StringVar(&logLevel, "log-level", "", "Log level, overrides the configuration file.")
	flag.Uint8Var(&tableID, "table", 0, "Table of the compiled flow entry.")
	flag.Uint16Var(&priority, "priority", 100, "Priority of the compiled flow entry.")
	flag.Uint32Var(&outPort, "out-port", 0, "Output port of passed packets, normal processing if zero.")
	flag.StringToStringVar(&redirects, "redirect-port", nil, "Ports of redirect destinations, as iface/dir=port.")
	flag.BoolVar(&printMetrics, "metrics", false, "Print the evaluation counters.")
	flag.Parse()

	if configPath == "" || iface == "" {
		fmt.Fprintln(os.Stderr, "--config and --interface are required")
		flag.Usage()
		return 2
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading configuration:", err)
		return 1
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid log level '%s': %s\n", logLevel, err)
			return 2
		}
		log.SetLevel(level)
	}

	dir, err := flowfilter.ParseDirection(direction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --direction '%s': %s\n", direction, err)
		return 2
	}
	ports, err := parseRedirectPorts(redirects)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid --redirect-port:", err)
		return 2
	}
	frame, err := loadFrame(frameHex, sample)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid frame:", err)
		return 2
	}

	conds := flowfilter.NewConditionStore()
	filters := flowfilter.NewFilterStore()
	if err := cfg.Apply(conds, filters); err != nil {
		fmt.Fprintln(os.Stderr, "Error applying configuration:", err)
		return 1
	}

	registry := prometheus.NewRegistry()
	metrics, err := flowfilter.NewMetrics(registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error registering metrics:", err)
		return 1
	}
	pipeline := flowfilter.NewPipeline(conds,
		flowfilter.WithFilterLists(filters),
		flowfilter.WithMetrics(metrics))

	pctx := flowfilter.NewPacketContext(frame, inPort)
	pctx.SetFlooding(flooding)
	outcome := pipeline.Evaluate(iface, dir, pctx)
	printOutcome(outcome, pctx)

	flowCfg := ofctrl.FlowConfig{
		TableId:  tableID,
		Priority: priority,
		OutPort:  outPort,
		RedirectPort: func(dest flowfilter.RedirectDestination) (uint32, bool) {
			port, ok := ports[dest.String()]
			return port, ok
		},
	}
	flow, err := ofctrl.NewFlow(pctx, outcome, flowCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error compiling flow entry:", err)
		return 1
	}
	fmt.Println("flow:", flow.String())
	flowMod, err := flow.GenerateFlowModMessage(openflow15.FC_ADD)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building flow-mod:", err)
		return 1
	}
	fmt.Println("flow-mod match:", ofctrl.NewMatchers(&flowMod.Match).String())

	if printMetrics {
		if err := dumpMetrics(registry); err != nil {
			fmt.Fprintln(os.Stderr, "Error gathering metrics:", err)
			return 1
		}
	}
	return 0
}

func loadFrame(frameHex, sample string) ([]byte, error) {
	if frameHex != "" {
		return hex.DecodeString(strings.ReplaceAll(frameHex, ":", ""))
	}
	var f *pktcache.Frame
	switch sample {
	case "tcp":
		f = pktcache.GenerateTCPFrame(sampleSrcMAC, sampleDstMAC, sampleSrcIP, sampleDstIP, 40000, 80)
	case "udp":
		f = pktcache.GenerateUDPFrame(sampleSrcMAC, sampleDstMAC, sampleSrcIP, sampleDstIP, 40000, 53)
	case "icmp":
		f = pktcache.GenerateICMPFrame(sampleSrcMAC, sampleDstMAC, sampleSrcIP, sampleDstIP, nil, nil)
	case "arp":
		f = pktcache.GenerateARPRequest(sampleSrcMAC, sampleSrcIP, sampleDstIP)
	default:
		return nil, errors.Errorf("unknown sample %q", sample)
	}
	return f.Serialize()
}

// parseRedirectPorts keys the ports by the String form of the destination.
func parseRedirectPorts(redirects map[string]string) (map[string]uint32, error) {
	ports := make(map[string]uint32, len(redirects))
	for key, value := range redirects {
		name, dirName, ok := strings.Cut(key, "/")
		if !ok {
			dirName = "in"
		}
		dir, err := flowfilter.ParseDirection(dirName)
		if err != nil {
			return nil, err
		}
		port, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, errors.Errorf("invalid port %q for %s", value, key)
		}
		dest := flowfilter.RedirectDestination{Interface: name, Direction: dir}
		ports[dest.String()] = uint32(port)
	}
	return ports, nil
}

func printOutcome(outcome flowfilter.Outcome, pctx *flowfilter.PacketContext) {
	fmt.Println("verdict:", outcome.Verdict)
	if outcome.FilterIndex >= 0 {
		fmt.Println("filter:", outcome.FilterIndex)
	}
	if outcome.Redirect != nil {
		fmt.Println("redirect:", outcome.Redirect)
	}
	if outcome.Description != "" {
		fmt.Println("packet:", outcome.Description)
	}
	for _, act := range pctx.AppliedActions() {
		fmt.Println("action:", act)
	}
	fields := make([]string, 0)
	for _, t := range pctx.MatchFields() {
		fields = append(fields, t.String())
	}
	fmt.Println("match fields:", strings.Join(fields, ","))
}

func dumpMetrics(registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			fmt.Printf("%s{%s} %v\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}
