package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const pdfContentType = "application/pdf"

// S3 stores results in a bucket under a key prefix.
type S3 struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucketName string
	prefix     string
}

// NewS3 loads the default AWS credential chain. region overrides the
// configured region when non-empty.
func NewS3(ctx context.Context, bucketName, prefix, region string) (*S3, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var opts []func(*awscfg.LoadOptions) error
	if region != "" {
		opts = append(opts, awscfg.WithRegion(region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &S3{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Key returns the object key used for a job's result.
func (s *S3) Key(jobID, name string) string {
	return path.Join(s.prefix, "results", jobID, name)
}

func (s *S3) Save(ctx context.Context, jobID, name string, data []byte) (string, error) {
	key := s.Key(jobID, name)
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(pdfContentType),
		Metadata: map[string]string{
			"job_id":  jobID,
			"name":    name,
			"created": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("job_id", jobID).Str("location", out.Location).Int("bytes", len(data)).Msg("uploaded result to S3")
	return "s3://" + s.bucketName + "/" + key, nil
}

func (s *S3) Load(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", ref, err)
	}
	return buf.Bytes(), nil
}

// Ping checks that the bucket is reachable with the current credentials.
func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucketName, err)
	}
	return nil
}

func (s *S3) Bucket() string { return s.bucketName }

func parseRef(ref string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, "s3://")
	if p == ref {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	parts := strings.SplitN(p, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 reference: %q", ref)
	}
	return parts[0], parts[1], nil
}
