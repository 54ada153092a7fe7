// Package objectstore wraps the S3-compatible bucket that holds video
// bytes. Miners upload through presigned PUT URLs and evaluator
// workers download through the SDK; the pipeline itself never proxies
// video bytes.
package objectstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"

	appconfig "kibotos/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloadTimeout bounds a single video fetch.
const DownloadTimeout = 2 * time.Minute

type Client struct {
	bucket     string
	presignTTL time.Duration
	s3         *s3.Client
	presigner  *s3.PresignClient
	downloader *manager.Downloader
}

func New(ctx context.Context, cfg appconfig.ObjectStoreConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		bucket:     cfg.S3Bucket,
		presignTTL: time.Duration(cfg.PresignTTLSec) * time.Second,
		s3:         s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		downloader: manager.NewDownloader(s3Client),
	}, nil
}

// PresignedUpload is what a miner needs to PUT its video: the URL, the
// key it must echo back in its submission, and when the URL expires.
type PresignedUpload struct {
	URL       string    `json:"url"`
	VideoKey  string    `json:"video_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignUpload mints a presigned PUT URL under a fresh
// uploads/{random}/{filename} key.
func (c *Client) PresignUpload(ctx context.Context, filename, contentType string) (PresignedUpload, error) {
	key, err := NewVideoKey(filename)
	if err != nil {
		return PresignedUpload{}, err
	}
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("presign upload: %w", err)
	}
	return PresignedUpload{
		URL:       req.URL,
		VideoKey:  key,
		ExpiresAt: time.Now().Add(c.presignTTL),
	}, nil
}

// PresignDownload mints a presigned GET URL for an existing key.
func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}

// Download fetches the full object into memory. No byte-size cap is
// enforced on uploads; admission bounds only the declared duration.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// NewVideoKey builds an uploads/{random}/{filename} object key,
// stripping any path components from the client-supplied filename.
func NewVideoKey(filename string) (string, error) {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	var random [8]byte
	if _, err := rand.Read(random[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("uploads/%s/%s", hex.EncodeToString(random[:]), base), nil
}
