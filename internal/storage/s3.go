package storage

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// NewS3Store creates a new S3-compatible store.
// Works with AWS S3, MinIO, LocalStack, Backblaze B2, and Cloudflare R2.
// endpoint can be empty for AWS S3, or a custom URL for an emulator.
func NewS3Store(bucketName, endpoint, region string) (ObjectStore, error) {
	ctx := context.Background()

	// Build URL for gocloud.dev
	// For AWS: s3://bucket-name?region=us-east-1
	// For custom endpoint: s3://bucket-name?endpoint=http://localhost:4566&region=eu-west-2
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		// Custom endpoints generally need path-style addressing
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return &blobStore{
		bucket: bucket,
		scheme: "s3",
		name:   bucketName,
	}, nil
}
