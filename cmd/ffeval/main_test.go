package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contiv/flowfilter/flowfilter"
	"github.com/contiv/flowfilter/pktcache"
)

func TestLoadFrame(t *testing.T) {
	for _, sample := range []string{"tcp", "udp", "icmp", "arp"} {
		frame, err := loadFrame("", sample)
		require.NoError(t, err, sample)
		cache := pktcache.New(frame)
		assert.NotNil(t, cache.EtherPacket(), sample)
	}

	_, err := loadFrame("", "sctp")
	assert.Error(t, err)

	frame, err := loadFrame("00:11:22:33:44:55", "")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, frame)

	_, err = loadFrame("zz", "")
	assert.Error(t, err)
}

func TestParseRedirectPorts(t *testing.T) {
	ports, err := parseRedirectPorts(map[string]string{
		"tap0":     "3",
		"tap1/out": "4",
	})
	require.NoError(t, err)
	in := flowfilter.RedirectDestination{Interface: "tap0", Direction: flowfilter.DirectionIn}
	out := flowfilter.RedirectDestination{Interface: "tap1", Direction: flowfilter.DirectionOut}
	assert.Equal(t, uint32(3), ports[in.String()])
	assert.Equal(t, uint32(4), ports[out.String()])

	_, err = parseRedirectPorts(map[string]string{"tap0/up": "3"})
	assert.Error(t, err)
	_, err = parseRedirectPorts(map[string]string{"tap0": "port"})
	assert.Error(t, err)
}
