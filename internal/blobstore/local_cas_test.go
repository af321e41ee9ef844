package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
)

func TestLocalCASPutOpenDelete(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}

	first, err := cas.Put(context.Background(), bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put first: %v", err)
	}
	if first.Digest == "" || first.BlobKey == "" {
		t.Fatalf("unexpected put result: %#v", first)
	}
	if !first.WasNew {
		t.Fatal("expected first put to report new content")
	}
	if first.Digest != DigestBytes([]byte("hello")) {
		t.Fatalf("put digest %q disagrees with DigestBytes", first.Digest)
	}

	second, err := cas.Put(context.Background(), bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if second.WasNew {
		t.Fatal("expected second put of identical bytes to dedupe")
	}
	if first.BlobKey != second.BlobKey || first.Digest != second.Digest {
		t.Fatalf("expected dedupe keys/digests to match: first=%#v second=%#v", first, second)
	}

	rc, err := cas.Open(context.Background(), first.Digest)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	if err := cas.Delete(context.Background(), first.Digest); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cas.Delete(context.Background(), first.Digest); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if _, err := cas.Open(context.Background(), first.Digest); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalCASConcurrentIdenticalWriters(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}

	const writers = 8
	payload := []byte("same bytes from many mailboxes")

	results := make([]PutResult, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cas.PutBytes(context.Background(), payload)
		}(i)
	}
	wg.Wait()

	want := DigestBytes(payload)
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if results[i].Digest != want {
			t.Fatalf("writer %d digest %q, want %q", i, results[i].Digest, want)
		}
	}

	rc, err := cas.Open(context.Background(), want)
	if err != nil {
		t.Fatalf("open converged blob: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("stored bytes differ from payload")
	}
}

func TestLocalCASInvalidDigest(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	for _, digest := range []string{"", "zz", "../../etc/passwd", "ABCDEF"} {
		if _, err := cas.Open(context.Background(), digest); err == nil {
			t.Fatalf("expected error for digest %q", digest)
		}
	}
}
