package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMimeType(t *testing.T) {
	tests := []struct {
		name string
		mime string
		want Format
	}{
		{
			"provider default",
			"audio/L16;codec=pcm;rate=24000",
			Format{SampleRate: 24000, BitDepth: 16, Channels: 1},
		},
		{
			"explicit channels",
			"audio/L24;rate=48000;channels=2",
			Format{SampleRate: 48000, BitDepth: 24, Channels: 2},
		},
		{
			"empty falls back to defaults",
			"",
			Format{SampleRate: 24000, BitDepth: 16, Channels: 1},
		},
		{
			"unknown parameters ignored",
			"audio/L16;codec=pcm;rate=24000;foo=bar",
			Format{SampleRate: 24000, BitDepth: 16, Channels: 1},
		},
		{
			"malformed values ignored",
			"audio/Lxx;rate=abc;channels=0",
			Format{SampleRate: 24000, BitDepth: 16, Channels: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseMimeType(tc.mime))
		})
	}
}

func TestWrapPCMHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	wav := WrapPCM(pcm, "audio/L16;codec=pcm;rate=24000")

	require.Len(t, wav, 44+len(pcm))
	require.Equal(t, "RIFF", string(wav[0:4]))
	require.Equal(t, "WAVE", string(wav[8:12]))
	require.Equal(t, "fmt ", string(wav[12:16]))
	require.Equal(t, "data", string(wav[36:40]))

	require.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	require.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	// byte rate = rate * channels * depth/8
	require.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	require.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]))
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	require.Equal(t, pcm, wav[44:])
}

func TestWrapPCMEmptyPayload(t *testing.T) {
	wav := WrapPCM(nil, "audio/L16;rate=24000")
	require.Len(t, wav, 44)
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(wav[40:44]))
}
