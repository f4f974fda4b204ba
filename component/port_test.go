package component

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortJSONRoundTrip_Network(t *testing.T) {
	original := Port{
		Name:      "udp-in",
		Direction: DirectionInput,
		Required:  true,
		Config: NetworkPort{
			Protocol: "udp",
			Host:     "0.0.0.0",
			Port:     14550,
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Port
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.Name, decoded.Name)
	assert.Equal(t, original.Direction, decoded.Direction)
	require.IsType(t, NetworkPort{}, decoded.Config)
	assert.Equal(t, "udp:0.0.0.0:14550", decoded.Config.ResourceID())
	assert.True(t, decoded.Config.IsExclusive())
}

func TestPortJSONRoundTrip_File(t *testing.T) {
	original := Port{
		Name:      "tlog-out",
		Direction: DirectionOutput,
		Config: FilePort{
			Path:    "/var/log/mavrelay",
			Pattern: "*.tlog",
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Port
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.IsType(t, FilePort{}, decoded.Config)
	assert.Equal(t, "file:/var/log/mavrelay", decoded.Config.ResourceID())
	assert.False(t, decoded.Config.IsExclusive())
}

func TestPortJSONRoundTrip_NATS(t *testing.T) {
	original := Port{
		Name:      "live-feed",
		Direction: DirectionOutput,
		Config: NATSPort{
			Subject: "mavlink.live",
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Port
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.IsType(t, NATSPort{}, decoded.Config)
	assert.Equal(t, "nats:mavlink.live", decoded.Config.ResourceID())
}

func TestPortUnmarshal_UnknownConfigType(t *testing.T) {
	raw := `{"name":"x","direction":"input","config":{"type":"carrier-pigeon","data":{}}}`

	var p Port
	err := json.Unmarshal([]byte(raw), &p)
	assert.Error(t, err)
}

func TestPortUnmarshal_NoConfig(t *testing.T) {
	raw := `{"name":"bare","direction":"output"}`

	var p Port
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Nil(t, p.Config)
}
