package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3(),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte(`{"chip_id":"8Q"}`)
			info, err := s.Put(ctx, "settings/8Q.json", bytes.NewReader(payload), PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"chip": "8Q"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(payload)) {
				t.Fatalf("unexpected size %d", info.Size)
			}
			if _, err := s.Put(ctx, "settings/8Q.json", bytes.NewReader(payload), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected exists error got %v", err)
			}

			got, rc, err := s.Get(ctx, "settings/8Q.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !bytes.Equal(body, payload) {
				t.Fatalf("unexpected body %q", body)
			}
			if got.ContentType != "application/json" || got.Metadata["chip"] != "8Q" {
				t.Fatalf("unexpected info %+v", got)
			}

			if _, err := s.Put(ctx, "other/x", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
				t.Fatalf("put other: %v", err)
			}
			list, err := s.List(ctx, "settings/")
			if err != nil || len(list) != 1 || list[0].Key != "settings/8Q.json" {
				t.Fatalf("unexpected list %+v %v", list, err)
			}

			if _, _, err := s.Get(ctx, "settings/64Q.json"); !errors.Is(err, ErrNotExist) {
				t.Fatalf("expected not exist got %v", err)
			}
			if _, err := s.Head(ctx, "settings/64Q.json"); !errors.Is(err, ErrNotExist) {
				t.Fatalf("expected head not exist got %v", err)
			}
			if ok, err := s.Delete(ctx, "settings/8Q.json"); err != nil || !ok {
				t.Fatalf("delete: %v %v", ok, err)
			}
			if ok, err := s.Delete(ctx, "settings/8Q.json"); err != nil || ok {
				t.Fatalf("second delete should report missing: %v %v", ok, err)
			}
		})
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	for _, key := range []string{"", "../x", "/abs", "a.meta"} {
		if _, err := s.Put(context.Background(), key, bytes.NewReader(nil), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestOpenFromEnv(t *testing.T) {
	ctx := context.Background()
	t.Setenv("QUBECORE_BLOB_DRIVER", "memory")
	if s, err := Open(ctx); err != nil || s.Driver() != DriverMemory {
		t.Fatalf("expected memory driver got %v %v", s, err)
	}
	t.Setenv("QUBECORE_BLOB_DRIVER", "")
	t.Setenv("QUBECORE_BLOB_FS_ROOT", t.TempDir())
	if s, err := Open(ctx); err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver got %v %v", s, err)
	}
	t.Setenv("QUBECORE_BLOB_DRIVER", "s3")
	t.Setenv("QUBECORE_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	t.Setenv("QUBECORE_BLOB_DRIVER", "tape")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
