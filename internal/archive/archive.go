// Package archive keeps copies of uploaded ingredient photos.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pantrychef/internal/imaging"
	"pantrychef/internal/recipe"
)

// Key returns the object key for an image owned by userID.
func Key(userID string, img recipe.Image) string {
	return path.Join(sanitize(userID), imaging.Hash(img.Data)+imaging.Extension(img.MIMEType))
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "anonymous"
	}
	return s
}

// Dir stores images below a local directory.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Put writes img below the user's directory and returns the file path.
func (d *Dir) Put(_ context.Context, userID string, img recipe.Image) (string, error) {
	key := Key(userID, img)
	imagePath := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(imagePath, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return imagePath, nil
}

// PutObjectAPI is the subset of the S3 client used by Bucket.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Bucket stores images in an S3 bucket.
type Bucket struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewBucket wraps an S3 client.
func NewBucket(client PutObjectAPI, bucket, prefix string) *Bucket {
	return &Bucket{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3Bucket loads the default AWS configuration for region and returns a
// Bucket backed by a real S3 client.
func NewS3Bucket(ctx context.Context, region, bucket, prefix string) (*Bucket, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewBucket(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

// Put uploads img below the user's prefix and returns its s3:// location.
func (b *Bucket) Put(ctx context.Context, userID string, img recipe.Image) (string, error) {
	key := Key(userID, img)
	if b.prefix != "" {
		key = b.prefix + "/" + key
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img.Data),
		ContentType: aws.String(img.MIMEType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}
