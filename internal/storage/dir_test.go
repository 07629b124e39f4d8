package storage

import (
	"context"
	"strings"
	"testing"
)

func TestDirStoreRoundTrip(t *testing.T) {
	d := NewDirStore(t.TempDir())
	ctx := context.Background()
	key := TenantKey("t1", "outputs", "asset-1.jpg")

	if _, err := d.UploadBytes(ctx, []byte("jpeg-bytes"), key, "image/jpeg"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	ok, err := d.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}

	data, err := d.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestDirStoreRejectsInvalidKeys(t *testing.T) {
	d := NewDirStore(t.TempDir())
	ctx := context.Background()

	if _, err := d.Download(ctx, ""); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("Download(\"\") error = %v, want empty-key rejection", err)
	}
	long := strings.Repeat("k", 1025)
	if _, err := d.UploadBytes(ctx, []byte("x"), long, "image/jpeg"); err == nil {
		t.Error("UploadBytes with oversized key should fail")
	}
}

func TestValidateKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"tenant key", TenantKey("t1", "captures", "cap-1.jpg"), false},
		{"empty", "", true},
		{"max length", strings.Repeat("k", 1024), false},
		{"over max length", strings.Repeat("k", 1025), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKey(tc.key)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateKey(%q) = %v, wantErr %v", tc.key, err, tc.wantErr)
			}
		})
	}
}
