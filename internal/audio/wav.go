package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SamplesToWAV encodes interleaved float32 PCM samples as a 16-bit WAV byte
// slice. channels=1 for the mono transcription track, channels=2 for the
// 48 kHz stereo background/mix tracks.
func SamplesToWAV(samples []float32, sampleRate, channels int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen
	blockAlign := channels * 2

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(val))
	}

	return buf
}

// WAVInfo describes a decoded WAV's format and interleaved samples.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// DecodeWAV parses a canonical 16-bit PCM WAV file, walking its chunk list so
// it tolerates extra chunks (e.g. LIST/INFO) between "fmt " and "data".
func DecodeWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("not a RIFF/WAVE file")
	}

	var info WAVInfo
	var bitsPerSample uint16
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			break
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, fmt.Errorf("fmt chunk too small")
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
		case "data":
			if bitsPerSample != 16 {
				return WAVInfo{}, fmt.Errorf("unsupported bits per sample: %d", bitsPerSample)
			}
			info.Samples = decodePCM(data[body : body+size])
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if info.SampleRate == 0 {
		return WAVInfo{}, fmt.Errorf("missing fmt chunk")
	}
	return info, nil
}

// DurationSeconds returns the playback duration of the decoded audio.
func (w WAVInfo) DurationSeconds() float64 {
	if w.Channels == 0 || w.SampleRate == 0 {
		return 0
	}
	frames := len(w.Samples) / w.Channels
	return float64(frames) / float64(w.SampleRate)
}
