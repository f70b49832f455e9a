package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vango-go/terminal/pkg/upload"
)

type fakeObject struct {
	data        []byte
	contentType *string
	metadata    map[string]string
	modified    time.Time
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	putErr  error
}

var errNoSuchKey = errors.New("NoSuchKey")

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]*fakeObject)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = &fakeObject{
		data:        data,
		contentType: in.ContentType,
		metadata:    in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(bucket, key *string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[*bucket+"/"+*key]
	return obj, ok
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.get(in.Bucket, in.Key)
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.get(in.Bucket, in.Key)
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.HeadObjectOutput{
		ContentType:   obj.contentType,
		ContentLength: aws.Int64(int64(len(obj.data))),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for full, obj := range f.objects {
		key := strings.TrimPrefix(full, *in.Bucket+"/")
		if key == full || !strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			continue
		}
		modified := obj.modified
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), LastModified: &modified})
	}
	return out, nil
}

func (f *fakeS3) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func TestS3Store_SaveAndClaim(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := upload.NewS3Store(client, "bucket", "uploads/", 0)

	id, err := store.Save(ctx, "photo.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := client.get(aws.String("bucket"), aws.String("uploads/"+id)); !ok {
		t.Fatal("object not stored under prefix")
	}

	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if file.Filename != "photo.png" || file.ContentType != "image/png" || file.Size != 9 {
		t.Errorf("file = %+v", file)
	}
	data, _ := io.ReadAll(file.Reader)
	if string(data) != "png-bytes" {
		t.Errorf("content = %q", data)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if client.len() != 0 {
		t.Error("object not deleted after claim")
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, upload.ErrNotFound) {
		t.Errorf("second Claim err = %v, want ErrNotFound", err)
	}
}

func TestS3Store_SaveTooLarge(t *testing.T) {
	client := newFakeS3()
	store := upload.NewS3Store(client, "bucket", "", 3)
	if _, err := store.Save(context.Background(), "x", "", strings.NewReader("four")); !errors.Is(err, upload.ErrTooLarge) {
		t.Fatalf("Save err = %v, want ErrTooLarge", err)
	}
	if client.len() != 0 {
		t.Error("oversized object stored")
	}
}

func TestS3Store_SavePutError(t *testing.T) {
	client := newFakeS3()
	client.putErr = errors.New("access denied")
	store := upload.NewS3Store(client, "bucket", "", 0)
	if _, err := store.Save(context.Background(), "x", "", strings.NewReader("data")); !errors.Is(err, client.putErr) {
		t.Fatalf("Save err = %v, want wrapped put error", err)
	}
}

func TestS3Store_Cleanup(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := upload.NewS3Store(client, "bucket", "uploads/", 0)

	oldID, _ := store.Save(ctx, "old", "", strings.NewReader("1"))
	newID, _ := store.Save(ctx, "new", "", strings.NewReader("2"))
	client.mu.Lock()
	client.objects["bucket/uploads/"+oldID].modified = time.Now().Add(-2 * time.Hour)
	client.objects["bucket/other/keep"] = &fakeObject{modified: time.Now().Add(-48 * time.Hour)}
	client.mu.Unlock()

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, ok := client.get(aws.String("bucket"), aws.String("uploads/"+oldID)); ok {
		t.Error("expired object survived")
	}
	if _, ok := client.get(aws.String("bucket"), aws.String("uploads/"+newID)); !ok {
		t.Error("fresh object removed")
	}
	if _, ok := client.get(aws.String("bucket"), aws.String("other/keep")); !ok {
		t.Error("object outside prefix removed")
	}
}
