package localmedia

import (
	"encoding/json"
	"testing"
)

func TestProbeResultIsMP4(t *testing.T) {
	cases := []struct {
		container string
		want      bool
	}{
		{"mov,mp4,m4a,3gp,3g2,mj2", true},
		{"mp4", true},
		{"matroska,webm", false},
		{"avi", false},
		{"", false},
	}
	for _, c := range cases {
		p := &ProbeResult{Container: c.container}
		if got := p.IsMP4(); got != c.want {
			t.Errorf("IsMP4(%q) = %v, want %v", c.container, got, c.want)
		}
	}
}

func TestFFProbeOutputParsing(t *testing.T) {
	raw := []byte(`{
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.480000", "size": "1048576", "bit_rate": "672000"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
			{"codec_type": "audio", "codec_name": "aac"}
		]
	}`)

	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal ffprobe output: %v", err)
	}
	if parseFloat(out.Format.Duration) != 12.48 {
		t.Fatalf("duration: got %v", parseFloat(out.Format.Duration))
	}
	if parseInt64(out.Format.Size) != 1048576 {
		t.Fatalf("size: got %v", parseInt64(out.Format.Size))
	}
	if parseInt64(out.Format.BitRate) != 672000 {
		t.Fatalf("bit_rate: got %v", parseInt64(out.Format.BitRate))
	}
	if len(out.Streams) != 2 || out.Streams[0].Width != 1280 || out.Streams[1].CodecName != "aac" {
		t.Fatalf("streams parsed wrong: %+v", out.Streams)
	}
}

func TestParseHelpersToleratesGarbage(t *testing.T) {
	if parseFloat("n/a") != 0 {
		t.Fatalf("parseFloat should return 0 for garbage")
	}
	if parseInt64("") != 0 {
		t.Fatalf("parseInt64 should return 0 for empty input")
	}
}
