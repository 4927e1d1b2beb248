package storage

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 serves the subset of the S3 REST API used by the purge path.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]bool
	deletes int
}

type deleteRequest struct {
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodGet && q.Get("list-type") == "2":
		prefix := q.Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
		fmt.Fprintf(&b, "<Name>bucket</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount>", prefix, len(keys))
		b.WriteString("<MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>")
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>1</Size></Contents>", k)
		}
		b.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, b.String())

	case r.Method == http.MethodPost && q.Has("delete"):
		var req deleteRequest
		if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, o := range req.Objects {
			delete(f.objects, o.Key)
		}
		f.deletes++
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)

	default:
		http.Error(w, "unsupported", http.StatusNotImplemented)
	}
}

func newFakeS3Storage(t *testing.T, objects ...string) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]bool)}
	for _, o := range objects {
		fake.objects[o] = true
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	return NewS3StorageWithClient(client, "bucket"), fake
}

func TestS3Storage_ListObjects(t *testing.T) {
	store, _ := newFakeS3Storage(t,
		"streams/org1/logs/app/a.parquet",
		"streams/org1/logs/app/b.parquet",
		"streams/org1/logs/other/c.parquet",
	)

	objects, err := store.ListObjects(context.Background(), "streams/org1/logs/app/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %v", objects)
	}
	if objects[0] != "streams/org1/logs/app/a.parquet" || objects[1] != "streams/org1/logs/app/b.parquet" {
		t.Errorf("unexpected objects: %v", objects)
	}
}

func TestDeletePrefix_S3UsesBatchDelete(t *testing.T) {
	store, fake := newFakeS3Storage(t,
		"streams/org1/logs/app/a.parquet",
		"streams/org1/logs/app/b.parquet",
		"streams/org1/logs/other/c.parquet",
	)

	n, err := DeletePrefix(context.Background(), store, "streams/org1/logs/app/")
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d objects, want 2", n)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.deletes != 1 {
		t.Errorf("expected a single batch delete request, got %d", fake.deletes)
	}
	if len(fake.objects) != 1 || !fake.objects["streams/org1/logs/other/c.parquet"] {
		t.Errorf("unexpected remaining objects: %v", fake.objects)
	}
}
