package session

import "testing"

func TestStoragePathFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			"virtual hosted",
			"https://clem-media.s3.us-east-1.amazonaws.com/media/t1/refs/style.png",
			"media/t1/refs/style.png",
		},
		{
			"virtual hosted with presign query",
			"https://clem-media.s3.us-east-1.amazonaws.com/media/t1/refs/style.png?X-Amz-Signature=abc&X-Amz-Expires=900",
			"media/t1/refs/style.png",
		},
		{
			"path style",
			"https://s3.us-east-1.amazonaws.com/clem-media/media/t1/captures/cap.jpg",
			"media/t1/captures/cap.jpg",
		},
		{
			"path style dashed region",
			"https://s3-eu-west-1.amazonaws.com/clem-media/media/t1/captures/cap.jpg",
			"media/t1/captures/cap.jpg",
		},
		{"empty", "", ""},
		{"not aws", "https://example.com/media/t1/refs/style.png", ""},
		{"no key", "https://clem-media.s3.us-east-1.amazonaws.com/", ""},
		{"path style bucket only", "https://s3.us-east-1.amazonaws.com/clem-media", ""},
		{
			"key outside media prefix",
			"https://clem-media.s3.us-east-1.amazonaws.com/other/t1/file.png",
			"",
		},
		{"unparseable", "://not-a-url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StoragePathFromURL(tt.url); got != tt.want {
				t.Errorf("StoragePathFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestStoragePathPrefersFilePath(t *testing.T) {
	ref := MediaReference{
		FilePath: "media/t1/refs/a.png",
		URL:      "https://clem-media.s3.us-east-1.amazonaws.com/media/t1/refs/b.png",
	}
	if got := ref.StoragePath(); got != "media/t1/refs/a.png" {
		t.Errorf("StoragePath() = %q", got)
	}

	legacy := MediaReference{URL: "https://clem-media.s3.us-east-1.amazonaws.com/media/t1/refs/b.png"}
	if got := legacy.StoragePath(); got != "media/t1/refs/b.png" {
		t.Errorf("legacy StoragePath() = %q", got)
	}
}

func TestNameDefaultsForLegacyRecords(t *testing.T) {
	ref := MediaReference{}
	if got := ref.Name(); got != DefaultDisplayName {
		t.Errorf("Name() = %q", got)
	}
	ref.DisplayName = "Style board"
	if got := ref.Name(); got != "Style board" {
		t.Errorf("Name() = %q", got)
	}
}
