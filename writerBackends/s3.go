package writerbackends

import (
	"bytes"
	"context"
	"fmt"

	"docrelay/logger"
	"docrelay/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadToS3WithCreds uploads data to a bucket and returns a presigned GET
// URL for it. S3-compatible stores (MinIO and the like) are reached through
// the endpoint key, which also switches to path-style addressing.
// accessInfo: accessKey, secretKey, region, bucket, prefix, endpoint, expires.
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, name string, data []byte) (string, error) {
	bucket := accessInfo["bucket"]
	region := accessInfo["region"]
	if bucket == "" || region == "" {
		return "", fmt.Errorf("missing required accessInfo keys: bucket, region")
	}
	expires, err := urlExpiry(accessInfo)
	if err != nil {
		return "", err
	}
	key, err := objectKey(accessInfo["prefix"], name)
	if err != nil {
		return "", err
	}

	creds := credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], "")
	opts := s3.Options{
		Region:      region,
		Credentials: creds,
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	s3Client := s3.New(opts)

	uploader := manager.NewUploader(s3Client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(storage.ContentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	presigned, err := s3.NewPresignClient(s3Client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return presigned.URL, nil
}
