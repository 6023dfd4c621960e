package export

import (
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vfs-go/internal/vfs"
)

// fakeS3 stores objects in memory. Objects small enough for a single part
// are all the uploader sends it.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	calls   int
	fail    error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	var body []byte
	if in.Body != nil {
		var err error
		if body, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}
	f.objects[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

var errMultipart = errors.New("multipart upload not supported by fake")

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestS3Mirror_Export(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	m := NewS3MirrorFromClient(fake, "cdn", "/live/", vfs.NewNopLogger())

	if err := m.CreateFolder(ctx, "/sites/default/news/", sitePoint); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if err := m.WriteFile(ctx, "/sites/default/news/a.html", sitePoint, []byte("<p>a</p>")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := m.WriteFile(ctx, "/sites/default/news/b.css", sitePoint, []byte("p{}")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	want := []string{"live/site/news/", "live/site/news/a.html", "live/site/news/b.css"}
	if got := fake.keys(); !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if got := string(fake.objects["live/site/news/a.html"]); got != "<p>a</p>" {
		t.Errorf("object content = %q", got)
	}
	if ct := fake.types["live/site/news/a.html"]; !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}

	if err := m.RemoveResource(ctx, "/sites/default/news/a.html", sitePoint); err != nil {
		t.Fatalf("RemoveResource() file error = %v", err)
	}
	if err := m.RemoveResource(ctx, "/sites/default/news/", sitePoint); err != nil {
		t.Fatalf("RemoveResource() folder error = %v", err)
	}
	if got := fake.keys(); len(got) != 0 {
		t.Errorf("keys after removal = %v", got)
	}
}

func TestS3Mirror_BreakerOpens(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.fail = errors.New("connection refused")
	m := NewS3MirrorFromClient(fake, "cdn", "", vfs.NewNopLogger())

	for i := 0; i < breakerFailures; i++ {
		if err := m.RemoveResource(ctx, "/sites/default/a.html", sitePoint); err == nil {
			t.Fatalf("RemoveResource() #%d succeeded against a failing bucket", i)
		}
	}
	calls := fake.calls

	err := m.RemoveResource(ctx, "/sites/default/a.html", sitePoint)
	if err == nil {
		t.Fatal("RemoveResource() succeeded with an open breaker")
	}
	if fake.calls != calls {
		t.Errorf("open breaker still reached the bucket: %d calls, want %d", fake.calls, calls)
	}
}
