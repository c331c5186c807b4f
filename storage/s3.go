package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveConfig holds credentials for the raw payload archive bucket.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: for DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

// Archiver stores raw scrape payloads in S3-compatible storage so a bad
// classification run can be replayed without re-hitting the ATS boards.
type Archiver struct {
	client *s3.Client
	bucket string
}

func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// ArchivePayload writes one company's raw board response under
// raw/{date}/{platform}/{company}.json. Re-archiving the same run
// overwrites the object, which is what replay wants.
func (a *Archiver) ArchivePayload(ctx context.Context, runDate time.Time, platform, companyID string, payload []byte) (string, error) {
	key := fmt.Sprintf("raw/%s/%s/%s.json", runDate.UTC().Format("2006-01-02"), platform, companyID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}
