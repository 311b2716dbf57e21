package audio

import (
	"math"
	"testing"
)

func sine(freqHz float64, durationSec float64, sampleRate int, amp float64) []float32 {
	n := int(durationSec * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestWAVRoundTrip(t *testing.T) {
	in := sine(440, 0.5, 16000, 0.5)
	data := SamplesToWAV(in, 16000, 1)

	info, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Fatalf("format = %d/%d, want 16000/1", info.SampleRate, info.Channels)
	}
	if len(info.Samples) != len(in) {
		t.Fatalf("got %d samples, want %d", len(info.Samples), len(in))
	}
	for i := range in {
		if math.Abs(float64(info.Samples[i]-in[i])) > 2e-4 {
			t.Fatalf("sample %d = %v, want %v within quantization error", i, info.Samples[i], in[i])
		}
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"short":     []byte("RIFF"),
		"not riff":  make([]byte, 64),
		"no chunks": append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 4)...),
	}
	for name, data := range cases {
		if _, err := DecodeWAV(data); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestResample(t *testing.T) {
	in := sine(440, 1.0, 48000, 0.5)
	out := Resample(in, 48000, 16000)

	wantLen := len(in) / 3
	if len(out) != wantLen {
		t.Fatalf("got %d samples, want %d", len(out), wantLen)
	}
	if got := Resample(in, 48000, 48000); &got[0] != &in[0] {
		t.Error("matching rates should return the input unchanged")
	}
}

func TestEncodePCM16(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 2.0, -2.0} // last two clamp
	out := EncodePCM16(in)
	if len(out) != len(in)*2 {
		t.Fatalf("got %d bytes, want %d", len(out), len(in)*2)
	}
	decoded := decodePCM(out)
	if decoded[1] != 1.0 || decoded[4] != 1.0 {
		t.Errorf("full-scale/clamped samples decoded to %v/%v, want 1.0", decoded[1], decoded[4])
	}
	if decoded[0] != 0 {
		t.Errorf("zero sample decoded to %v", decoded[0])
	}
}

func TestDetectSpeechRegions(t *testing.T) {
	sr := 16000
	cfg := DefaultVADConfig()
	cfg.CalibrationSec = 0 // fixed threshold keeps the fixture simple

	// 1s silence, 1s tone, 1s silence, 1s tone.
	var samples []float32
	samples = append(samples, make([]float32, sr)...)
	samples = append(samples, sine(440, 1.0, sr, 0.5)...)
	samples = append(samples, make([]float32, sr)...)
	samples = append(samples, sine(440, 1.0, sr, 0.5)...)

	regions := DetectSpeechRegions(samples, cfg)
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2: %+v", len(regions), regions)
	}
	for i, r := range regions {
		if r.EndSample <= r.StartSample {
			t.Errorf("region %d is empty: %+v", i, r)
		}
	}
	startSec := float64(regions[1].StartSample) / float64(sr)
	if startSec < 2.5 || startSec > 3.1 {
		t.Errorf("second region starts at %.2fs, want ~3s", startSec)
	}
}

func TestDetectSpeechRegions_AllSilence(t *testing.T) {
	cfg := DefaultVADConfig()
	if regions := DetectSpeechRegions(make([]float32, 16000*2), cfg); len(regions) != 0 {
		t.Fatalf("expected no regions in silence, got %+v", regions)
	}
}
