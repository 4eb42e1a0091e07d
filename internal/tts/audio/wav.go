// Package audio wraps raw PCM returned by synthesis providers into a WAV
// container so stored artifacts are playable as-is.
package audio

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// PCM defaults used when the provider mime type omits parameters. The hosted
// generative model emits "audio/L16;codec=pcm;rate=24000".
const (
	defaultSampleRate = 24000
	defaultBitDepth   = 16
	defaultChannels   = 1
)

// Format describes the PCM layout parsed from a provider mime type.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// ParseMimeType extracts PCM parameters from mime types such as
// "audio/L16;codec=pcm;rate=24000". Unknown parameters are ignored.
func ParseMimeType(mimeType string) Format {
	format := Format{
		SampleRate: defaultSampleRate,
		BitDepth:   defaultBitDepth,
		Channels:   defaultChannels,
	}

	parts := strings.Split(mimeType, ";")
	if len(parts) > 0 {
		subtype := strings.TrimPrefix(strings.TrimSpace(strings.ToUpper(parts[0])), "AUDIO/")
		if strings.HasPrefix(subtype, "L") {
			if bits, err := strconv.Atoi(subtype[1:]); err == nil && bits > 0 {
				format.BitDepth = bits
			}
		}
	}

	for _, param := range parts[1:] {
		key, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if !found {
			continue
		}
		switch strings.ToLower(key) {
		case "rate":
			if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
				format.SampleRate = rate
			}
		case "channels":
			if channels, err := strconv.Atoi(value); err == nil && channels > 0 {
				format.Channels = channels
			}
		}
	}

	return format
}

// WrapPCM prepends a RIFF/WAVE header to raw PCM data. The provider mime
// type decides sample rate, bit depth and channel count.
func WrapPCM(pcm []byte, mimeType string) []byte {
	format := ParseMimeType(mimeType)

	byteRate := format.SampleRate * format.Channels * format.BitDepth / 8
	blockAlign := format.Channels * format.BitDepth / 8
	dataSize := len(pcm)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(format.BitDepth))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	return append(header, pcm...)
}
