package video_compress

import (
	"testing"

	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
)

func TestAlreadyOptimized(t *testing.T) {
	cases := []struct {
		name  string
		probe localmedia.ProbeResult
		want  bool
	}{
		{
			name:  "h264 within limits",
			probe: localmedia.ProbeResult{VideoCodec: "h264", Width: 1920, Height: 1080, BitRate: 3_000_000},
			want:  true,
		},
		{
			name:  "hevc within limits",
			probe: localmedia.ProbeResult{VideoCodec: "hevc", Width: 1280, Height: 720, BitRate: 2_000_000},
			want:  true,
		},
		{
			name:  "legacy codec",
			probe: localmedia.ProbeResult{VideoCodec: "mpeg4", Width: 1280, Height: 720, BitRate: 2_000_000},
			want:  false,
		},
		{
			name:  "oversized frame",
			probe: localmedia.ProbeResult{VideoCodec: "h264", Width: 3840, Height: 2160, BitRate: 3_000_000},
			want:  false,
		},
		{
			name:  "bitrate too high",
			probe: localmedia.ProbeResult{VideoCodec: "h264", Width: 1920, Height: 1080, BitRate: 12_000_000},
			want:  false,
		},
		{
			name:  "unknown bitrate forces transcode",
			probe: localmedia.ProbeResult{VideoCodec: "h264", Width: 1920, Height: 1080, BitRate: 0},
			want:  false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := alreadyOptimized(&tc.probe); got != tc.want {
				t.Fatalf("alreadyOptimized(%+v) = %v, want %v", tc.probe, got, tc.want)
			}
		})
	}
}

func TestIsMP4Containers(t *testing.T) {
	mp4 := localmedia.ProbeResult{Container: "mov,mp4,m4a,3gp,3g2,mj2"}
	if !mp4.IsMP4() {
		t.Fatal("mp4 family container should not be remuxed from scratch")
	}
	mkv := localmedia.ProbeResult{Container: "matroska,webm"}
	if mkv.IsMP4() {
		t.Fatal("matroska should be remuxed")
	}
}
