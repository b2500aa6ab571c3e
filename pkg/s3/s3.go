package s3

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultRegion    = "us-east-1"
	defaultURLExpiry = 7 * 24 * time.Hour
)

// Object describes an uploaded object.
type Object struct {
	Bucket string
	Name   string
	Size   int64
}

// URI returns the s3:// form stored alongside markers.
func (o Object) URI() string {
	return fmt.Sprintf("s3://%s/%s", o.Bucket, o.Name)
}

// ObjectStorageClient stores marker photos.
type ObjectStorageClient interface {
	Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error
	UploadImage(ctx context.Context, markerID, fileName string, content io.Reader, size int64) (Object, error)
	PresignedURL(ctx context.Context, objectName string) (string, error)
	RemoveObject(ctx context.Context, objectName string) error
}

// ObjectStorage holds the object storage client instance.
type ObjectStorage struct {
	Conn   *minio.Client
	bucket string
}

// NewObjectStorage returns a client storing objects in bucket.
func NewObjectStorage(bucket string) *ObjectStorage {
	return &ObjectStorage{bucket: bucket}
}

// Connect establishes the object storage connection and makes sure the bucket exists.
func (o *ObjectStorage) Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	var err error
	o.Conn, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := o.Conn.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("failed to establish minio connection: %w", err)
	}
	if exists {
		return nil
	}

	if err := o.Conn.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", o.bucket, err)
	}
	return nil
}

// UploadImage stores content under a fresh object name scoped to markerID.
func (o *ObjectStorage) UploadImage(ctx context.Context, markerID, fileName string, content io.Reader, size int64) (Object, error) {
	name := ObjectName(markerID, fileName)

	info, err := o.Conn.PutObject(ctx, o.bucket, name, content, size, minio.PutObjectOptions{
		ContentType: ContentType(fileName),
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload %s: %w", fileName, err)
	}
	return Object{Bucket: o.bucket, Name: name, Size: info.Size}, nil
}

// PresignedURL returns a time limited download link for objectName.
func (o *ObjectStorage) PresignedURL(ctx context.Context, objectName string) (string, error) {
	u, err := o.Conn.PresignedGetObject(ctx, o.bucket, objectName, defaultURLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}
	return u.String(), nil
}

func (o *ObjectStorage) RemoveObject(ctx context.Context, objectName string) error {
	return o.Conn.RemoveObject(ctx, o.bucket, objectName, minio.RemoveObjectOptions{})
}

// ObjectName builds markers/<marker id>/<uuid><ext>.
func ObjectName(markerID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return path.Join("markers", markerID, uuid.NewString()+ext)
}

// ContentType guesses the MIME type from the file extension.
func ContentType(fileName string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
