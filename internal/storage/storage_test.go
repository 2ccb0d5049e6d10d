package storage

import (
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		wantType string
	}{
		{"video.mp4", "", "video/mp4"},
		{"archive.bin", "", "application/octet-stream"},
		{"noextension", "", "application/octet-stream"},
		{"video.mp4", "video/x-custom", "video/x-custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.declared, func(t *testing.T) {
			got := resolveContentType(tt.name, tt.declared)
			if got != tt.wantType {
				t.Errorf("resolveContentType(%q, %q) = %q, want %q", tt.name, tt.declared, got, tt.wantType)
			}
		})
	}
}

func TestFileIDFromMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta minio.StringMap
		want string
	}{
		{"stat shape", minio.StringMap{"Fileid": "abc"}, "abc"},
		{"list shape", minio.StringMap{"X-Amz-Meta-Fileid": "def"}, "def"},
		{"absent", minio.StringMap{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fileIDFromMetadata(tt.meta); got != tt.want {
				t.Errorf("fileIDFromMetadata() = %q, want %q", got, tt.want)
			}
		})
	}
}
