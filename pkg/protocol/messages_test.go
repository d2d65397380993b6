// ABOUTME: Tests for FruityPi protocol message types
// ABOUTME: Verifies color datagrams and JSON envelope decoding
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalColor(t *testing.T) {
	data := MarshalColor(color.RGB(0xbd, 0x52, 0xf2))
	assert.Equal(t, []byte{OpColorOverride, 0xbd, 0x52, 0xf2}, data)

	c, err := UnmarshalColor(data)
	require.NoError(t, err)
	assert.Equal(t, color.RGB(0xbd, 0x52, 0xf2), c)
}

func TestUnmarshalColorRejectsBadDatagrams(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrShortDatagram},
		{"truncated", []byte{OpColorOverride, 1, 2}, ErrShortDatagram},
		{"wrong opcode", []byte{0x02, 1, 2, 3}, ErrUnknownOpcode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalColor(tt.data)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUnmarshalColorIgnoresTrailingBytes(t *testing.T) {
	c, err := UnmarshalColor([]byte{OpColorOverride, 1, 2, 3, 99})
	require.NoError(t, err)
	assert.Equal(t, color.RGB(1, 2, 3), c)
}

func TestColorMessageJSON(t *testing.T) {
	data, err := json.Marshal(ColorMessage(color.RGB(255, 0, 16)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"color/override","payload":{"r":255,"g":0,"b":16,"hex":"#ff0010"}}`, string(data))

	env, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeColorOverride, env.Type)

	var override ColorOverride
	require.NoError(t, env.Decode(&override))
	assert.Equal(t, color.RGB(255, 0, 16), override.Color())
}

func TestClientHelloRoundTrip(t *testing.T) {
	hello := ClientHello{
		ClientID: "test-id",
		Name:     "Living Room",
		Version:  ProtocolVersion,
		DeviceInfo: &DeviceInfo{
			ProductName:     "FruityPi Visualizer",
			Manufacturer:    "FruityPi",
			SoftwareVersion: "0.1.0",
		},
	}

	data, err := json.Marshal(Message{Type: TypeClientHello, Payload: hello})
	require.NoError(t, err)

	env, err := ParseEnvelope(data)
	require.NoError(t, err)

	var decoded ClientHello
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, hello, decoded)
}

func TestParseEnvelopeErrors(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}
