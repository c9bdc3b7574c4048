package importexport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"wsideid/internal/config"
	"wsideid/internal/services"
)

// RemoteSink stores exported files at a remote destination.
type RemoteSink interface {
	// Key maps a path relative to the finished folder to an object key.
	Key(rel string) string
	Put(ctx context.Context, key, localPath string, size int64, contentType string) error
}

// MinIOSink uploads exports to an S3-compatible bucket. Safe for concurrent
// use.
type MinIOSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOSink connects to the remote described by cfg and ensures the
// bucket exists.
func NewMinIOSink(ctx context.Context, cfg config.Remote) (*MinIOSink, error) {
	cli, bucket, prefix, err := newMinIOClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, remoteProbeTimeout)
	defer cancel()
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "importexport", "remote", "check bucket existence", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinIOSink{client: cli, bucket: bucket, prefix: prefix}, nil
}

// ProbeRemote checks that the remote is reachable with the configured
// credentials. Unlike NewMinIOSink it never creates the bucket.
func ProbeRemote(ctx context.Context, cfg config.Remote) (bucketExists bool, err error) {
	cli, bucket, _, err := newMinIOClient(cfg)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, remoteProbeTimeout)
	defer cancel()
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "importexport", "remote", "check bucket existence", err)
	}
	return exists, nil
}

const remoteProbeTimeout = 10 * time.Second

func newMinIOClient(cfg config.Remote) (*minio.Client, string, string, error) {
	if cfg.Host == "" {
		return nil, "", "", services.Wrap(services.ErrConfiguration, "importexport", "remote", "remote.host is required", nil)
	}
	bucket, prefix, _ := strings.Cut(strings.Trim(cfg.Path, "/"), "/")
	if bucket == "" {
		return nil, "", "", services.Wrap(services.ErrConfiguration, "importexport", "remote", "remote.path must name a bucket", nil)
	}
	if cfg.User == "" || cfg.Password == "" {
		return nil, "", "", services.Wrap(services.ErrConfiguration, "importexport", "remote", "remote credentials are required", nil)
	}

	endpoint := cfg.Host
	if cfg.Port > 0 {
		endpoint = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Password, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("create minio client: %w", err)
	}
	return cli, bucket, prefix, nil
}

// Key implements RemoteSink.
func (m *MinIOSink) Key(rel string) string {
	if m.prefix == "" {
		return rel
	}
	return path.Join(m.prefix, rel)
}

// Put implements RemoteSink by streaming the file from disk.
func (m *MinIOSink) Put(ctx context.Context, key, localPath string, size int64, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = m.client.PutObject(ctx, m.bucket, key, f, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}
