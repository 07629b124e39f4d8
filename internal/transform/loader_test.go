package transform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clementinehq/clementine/internal/session"
)

// fakeStore records every call so tests can assert fail-fast behavior.
type fakeStore struct {
	objects map[string][]byte
	calls   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.calls = append(f.calls, "exists:"+key)
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Download(_ context.Context, key string) ([]byte, error) {
	f.calls = append(f.calls, "download:"+key)
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeStore) DownloadToFile(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (f *fakeStore) Upload(context.Context, string, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStore) UploadBytes(context.Context, []byte, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

func ref(id, key string) session.MediaReference {
	return session.MediaReference{MediaAssetID: id, FilePath: key, DisplayName: id}
}

func TestLoadReferencesAllPresent(t *testing.T) {
	store := newFakeStore()
	store.objects["media/t1/refs/a.png"] = []byte("aaa")
	store.objects["media/t1/refs/b.jpg"] = []byte("bbb")

	got, err := LoadReferences(context.Background(), store, []session.MediaReference{
		ref("asset-a", "media/t1/refs/a.png"),
		ref("asset-b", "media/t1/refs/b.jpg"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d references, want 2", len(got))
	}
	if got[0].ID != "asset-a" || got[0].MIMEType != "image/png" || string(got[0].Data) != "aaa" {
		t.Errorf("first reference = %+v", got[0])
	}
	if got[1].MIMEType != "image/jpeg" {
		t.Errorf("second reference MIME = %s, want image/jpeg", got[1].MIMEType)
	}
}

func TestLoadReferencesFailFast(t *testing.T) {
	store := newFakeStore()
	store.objects["media/t1/refs/a.png"] = []byte("aaa")
	store.objects["media/t1/refs/c.png"] = []byte("ccc")
	// b is intentionally absent.

	_, err := LoadReferences(context.Background(), store, []session.MediaReference{
		ref("asset-a", "media/t1/refs/a.png"),
		ref("asset-b", "media/t1/refs/b.png"),
		ref("asset-c", "media/t1/refs/c.png"),
	})
	if err == nil {
		t.Fatal("expected error for missing second reference")
	}
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != KindReferenceImageNotFound {
		t.Fatalf("error = %v, want kind %s", err, KindReferenceImageNotFound)
	}

	// The third reference must never be touched once the second is missing.
	for _, call := range store.calls {
		if call == "exists:media/t1/refs/c.png" || call == "download:media/t1/refs/c.png" {
			t.Errorf("loader touched third reference after miss: %v", store.calls)
		}
	}
	want := []string{
		"exists:media/t1/refs/a.png",
		"download:media/t1/refs/a.png",
		"exists:media/t1/refs/b.png",
	}
	if len(store.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", store.calls, want)
	}
	for i := range want {
		if store.calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, store.calls[i], want[i])
		}
	}
}

func TestLoadReferencesNoStoragePath(t *testing.T) {
	store := newFakeStore()
	_, err := LoadReferences(context.Background(), store, []session.MediaReference{
		{MediaAssetID: "asset-x", DisplayName: "Floating ref"},
	})
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != KindInvalidConfig {
		t.Fatalf("error = %v, want kind %s", err, KindInvalidConfig)
	}
	if len(store.calls) != 0 {
		t.Errorf("store should not be touched for a pathless reference, calls = %v", store.calls)
	}
}

func TestLoadReferencesEmpty(t *testing.T) {
	got, err := LoadReferences(context.Background(), newFakeStore(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil slice for no references, got %v", got)
	}
}
