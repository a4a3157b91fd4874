package gcp

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestObjectKeyIsDeterministicAndScoped(t *testing.T) {
	tenantID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	recordID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	key := ObjectKey(tenantID, recordID, "video", "processed.mp4")
	want := fmt.Sprintf("tenants/%s/records/%s/video/processed.mp4", tenantID, recordID)
	if key != want {
		t.Fatalf("ObjectKey: want=%q got=%q", want, key)
	}
	if key != ObjectKey(tenantID, recordID, "video", "processed.mp4") {
		t.Fatalf("ObjectKey should be deterministic for identical inputs")
	}
	if !strings.HasPrefix(key, TenantPrefix(tenantID)) {
		t.Fatalf("object key %q must live under tenant prefix %q", key, TenantPrefix(tenantID))
	}
}

func TestObjectKeyStripsPathComponentsFromFilename(t *testing.T) {
	tenantID := uuid.New()
	recordID := uuid.New()

	key := ObjectKey(tenantID, recordID, "audio", "/tmp/scratch/../clip.mp3")
	if strings.Contains(key, "..") {
		t.Fatalf("object key must not contain path traversal: %q", key)
	}
	if !strings.HasSuffix(key, "/audio/clip.mp3") {
		t.Fatalf("object key should end with sanitized filename, got %q", key)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"tenants/a/records/b/video/out.mp4": "video/mp4",
		"tenants/a/records/b/audio/out.mp3": "audio/mpeg",
		"tenants/a/records/b/video/raw.mov": "video/quicktime",
		"tenants/a/records/b/audio/raw.wav": "audio/wav",
		"tenants/a/records/b/misc/data.bin": "",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Errorf("contentTypeForKey(%q) = %q, want %q", key, got, want)
		}
	}
}
