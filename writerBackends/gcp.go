package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"docrelay/logger"
	"docrelay/storage"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// decodeCredentials accepts the service account JSON either base64 encoded
// or raw.
func decodeCredentials(raw string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}

// UploadToGCSWithJSON uploads data to a bucket with the given service
// account and returns a V4 signed GET URL.
// accessInfo: credentialsJSON, bucket, prefix, expires.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, name string, data []byte) (string, error) {
	bucketName := accessInfo["bucket"]
	if bucketName == "" || accessInfo["credentialsJSON"] == "" {
		return "", fmt.Errorf("missing required accessInfo keys: bucket, credentialsJSON")
	}
	expires, err := urlExpiry(accessInfo)
	if err != nil {
		return "", err
	}
	objectName, err := objectKey(accessInfo["prefix"], name)
	if err != nil {
		return "", err
	}

	client, err := gcs.NewClient(ctx, option.WithCredentialsJSON(decodeCredentials(accessInfo["credentialsJSON"])))
	if err != nil {
		return "", fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	bucket := client.Bucket(bucketName)
	wc := bucket.Object(objectName).NewWriter(ctx)
	wc.ContentType = storage.ContentType(name)

	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return "", fmt.Errorf("Writer.Write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}

	signed, err := bucket.SignedURL(objectName, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expires),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", objectName, err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return signed, nil
}
