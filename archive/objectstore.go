package archive

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo describes one entry returned by ObjectStore.ListObjects: either
// a regular object (Key, Size) or, when Delimiter grouping is in effect, a
// common prefix (IsPrefix true, only Key populated).
type ObjectInfo struct {
	Key      string
	Size     int64
	IsPrefix bool
	Err      error
}

// ObjectStore is the external object-storage collaborator this package
// depends on: paginated listing with common-prefix grouping, and object
// download into a caller-supplied writer with a progress callback.
type ObjectStore interface {
	// ListObjects lists all objects (or, with a non-empty delimiter, all
	// common prefixes) under bucket/prefix. The returned channel is closed
	// when listing completes or ctx is cancelled.
	ListObjects(ctx context.Context, bucket, prefix, delimiter string) <-chan ObjectInfo

	// GetObject streams the object's content into w, invoking progress
	// after every chunk with the cumulative byte count written so far.
	GetObject(ctx context.Context, bucket, key string, w io.Writer, progress func(n int64)) error
}

// minioStore adapts github.com/minio/minio-go/v7 to the ObjectStore
// interface, using anonymous (unsigned) credentials suitable for public
// buckets.
type minioStore struct {
	client *minio.Client
}

// NewAnonymousObjectStore returns an ObjectStore backed by the S3-compatible
// endpoint, using unsigned/anonymous access — no credentials are presented,
// matching the archive's public, read-only access model.
func NewAnonymousObjectStore(endpoint string, useSSL bool) (ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("", "", ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioStore{client: client}, nil
}

func (m *minioStore) ListObjects(ctx context.Context, bucket, prefix, delimiter string) <-chan ObjectInfo {
	out := make(chan ObjectInfo)
	go func() {
		defer close(out)
		for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: delimiter == "",
		}) {
			if obj.Err != nil {
				select {
				case out <- ObjectInfo{Err: obj.Err}:
				case <-ctx.Done():
				}
				return
			}
			info := ObjectInfo{Key: obj.Key, Size: obj.Size}
			if delimiter != "" && obj.Size == 0 && len(obj.Key) > 0 && obj.Key[len(obj.Key)-1] == '/' {
				info.IsPrefix = true
			}
			select {
			case out <- info:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (m *minioStore) GetObject(ctx context.Context, bucket, key string, w io.Writer, progress func(n int64)) error {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	buf := make([]byte, 256*1024)
	var total int64
	for {
		n, rerr := obj.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
