// Package landing writes fetched payloads to the S3 landing zone the
// warehouse loads from, and prunes expired partitions.
package landing

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

// S3API is the subset of the S3 client used by the Lander.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, input *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Lander writes extraction payloads into the landing bucket.
// Key layout: {prefix}/{table}/{yyyy-mm-dd}/{symbol}.{csv|json}
// The date segment is the extraction date, which is what retention
// cleanup and the warehouse COPY both partition on.
type Lander struct {
	client S3API
	bucket string
	prefix string
	logger *logger.Logger
}

// Option configures a Lander.
type Option func(*Lander)

// WithClient sets a custom S3 client (useful for testing).
func WithClient(c S3API) Option {
	return func(l *Lander) { l.client = c }
}

// New creates a Lander from config.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*Lander, error) {
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name required")
	}

	l := &Lander{
		bucket: cfg.S3.Bucket,
		prefix: strings.Trim(cfg.S3.Prefix, "/"),
		logger: log.WithField("module", "landing"),
	}
	for _, o := range opts {
		o(l)
	}

	if l.client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		l.client = s3.NewFromConfig(awsCfg)
	}

	return l, nil
}

// Key computes the object key for one payload.
func (l *Lander) Key(tableName, symbol, format string, extractedAt time.Time) string {
	key := fmt.Sprintf("%s/%s/%s/%s.%s",
		l.prefix, tableName, extractedAt.UTC().Format("2006-01-02"), symbol, format)
	return strings.TrimLeft(key, "/")
}

// Put writes one payload and returns its key. Re-extracting a symbol
// on the same day overwrites the earlier object, so the partition
// holds at most one document per symbol.
func (l *Lander) Put(ctx context.Context, tableName, symbol, format string, body []byte, extractedAt time.Time) (string, error) {
	key := l.Key(tableName, symbol, format, extractedAt)

	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv"
	}

	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("putting %s to S3: %w", key, err)
	}

	return key, nil
}

// Cleanup deletes partitions of a table older than retentionDays,
// counted back from now. Returns the number of deleted objects.
func (l *Lander) Cleanup(ctx context.Context, tableName string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := now.UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	tablePrefix := strings.TrimLeft(l.prefix+"/"+tableName+"/", "/")

	deleted := 0
	var continuation *string
	for {
		page, err := l.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(l.bucket),
			Prefix:            aws.String(tablePrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return deleted, fmt.Errorf("listing %s: %w", tablePrefix, err)
		}

		var expired []s3types.ObjectIdentifier
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			date := partitionDate(*obj.Key, tablePrefix)
			// Lexicographic compare works for yyyy-mm-dd.
			if date != "" && date < cutoff {
				expired = append(expired, s3types.ObjectIdentifier{Key: obj.Key})
			}
		}

		if len(expired) > 0 {
			_, err = l.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(l.bucket),
				Delete: &s3types.Delete{
					Objects: expired,
					Quiet:   aws.Bool(true),
				},
			})
			if err != nil {
				return deleted, fmt.Errorf("deleting expired objects: %w", err)
			}
			deleted += len(expired)
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}

	if deleted > 0 {
		l.logger.WithFields(map[string]interface{}{
			"table":   tableName,
			"deleted": deleted,
			"cutoff":  cutoff,
		}).Info("Landing partitions cleaned up")
	}

	return deleted, nil
}

// partitionDate extracts the date segment from a landing key.
func partitionDate(key, tablePrefix string) string {
	rest := strings.TrimPrefix(key, tablePrefix)
	if rest == key {
		return ""
	}
	date, _, ok := strings.Cut(rest, "/")
	if !ok || len(date) != 10 {
		return ""
	}
	return date
}
