package export

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"

	"vfs-go/internal/vfs"
)

const (
	s3CallTimeout   = 2 * time.Minute
	breakerFailures = 5
)

// S3API is the subset of the S3 client used by S3Mirror.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures NewS3Mirror. Empty credentials fall back to the
// default AWS credential chain.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Mirror exports into a bucket that is usually fronted by a CDN. Folders
// become zero-length marker objects whose key ends in a slash. Calls go
// through a circuit breaker so an unreachable bucket fails fast instead of
// stalling every file of a publish.
type S3Mirror struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	breaker  *gobreaker.CircuitBreaker
}

var _ vfs.ExportMirror = (*S3Mirror)(nil)

// NewS3Mirror builds an S3 client from opts.
func NewS3Mirror(ctx context.Context, opts S3Options, logger vfs.Logger) (*S3Mirror, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 export requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMode(aws.RetryModeAdaptive),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""))))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3MirrorFromClient(client, opts.Bucket, opts.Prefix, logger), nil
}

// NewS3MirrorFromClient wraps an existing client.
func NewS3MirrorFromClient(client S3API, bucket, prefix string, logger vfs.Logger) *S3Mirror {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "s3-export",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("export circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &S3Mirror{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		breaker:  breaker,
	}
}

func (m *S3Mirror) key(vfsPath string, point vfs.ExportPoint) (string, error) {
	t, err := target(vfsPath, point)
	if err != nil {
		return "", err
	}
	t = strings.TrimPrefix(t, "/")
	if m.prefix == "" {
		return t, nil
	}
	return m.prefix + "/" + t, nil
}

func (m *S3Mirror) CreateFolder(ctx context.Context, vfsPath string, point vfs.ExportPoint) error {
	key, err := m.key(vfsPath, point)
	if err != nil {
		return err
	}
	return m.put(ctx, key, nil)
}

func (m *S3Mirror) WriteFile(ctx context.Context, vfsPath string, point vfs.ExportPoint, content []byte) error {
	key, err := m.key(vfsPath, point)
	if err != nil {
		return err
	}
	return m.put(ctx, key, content)
}

func (m *S3Mirror) put(ctx context.Context, key string, content []byte) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" && !strings.HasSuffix(key, "/") {
		in.ContentType = aws.String(ct)
	}
	return m.call(ctx, "uploading "+key, func(ctx context.Context) error {
		_, err := m.uploader.Upload(ctx, in)
		return err
	})
}

// RemoveResource deletes the object of a file, or every object below the
// marker of a folder.
func (m *S3Mirror) RemoveResource(ctx context.Context, vfsPath string, point vfs.ExportPoint) error {
	key, err := m.key(vfsPath, point)
	if err != nil {
		return err
	}
	if !isFolder(key) {
		return m.delete(ctx, key)
	}

	var keys []string
	err = m.call(ctx, "listing "+key, func(ctx context.Context) error {
		pages := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(m.bucket),
			Prefix: aws.String(key),
		})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				keys = append(keys, aws.ToString(obj.Key))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deepest keys first, the marker last.
	for i := len(keys) - 1; i >= 0; i-- {
		if err := m.delete(ctx, keys[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *S3Mirror) delete(ctx context.Context, key string) error {
	return m.call(ctx, "deleting "+key, func(ctx context.Context) error {
		_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (m *S3Mirror) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s3CallTimeout)
	defer cancel()
	_, err := m.breaker.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("%s in bucket %s: %w", op, m.bucket, err)
	}
	return nil
}
