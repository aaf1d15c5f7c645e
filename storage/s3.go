package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"pub-viewer/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const archivePrefix = "uploads/"

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// S3API is the subset of *s3.Client used by Archive.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Archive keeps a copy of every accepted upload and rotates old copies.
type Archive struct {
	Client  S3API
	Bucket  string
	BaseURL string
	Keep    int
	now     func() time.Time
}

func NewArchive(client S3API, cfg *config.Config) *Archive {
	return &Archive{
		Client:  client,
		Bucket:  cfg.S3Bucket,
		BaseURL: strings.TrimRight(cfg.S3URL, "/"),
		Keep:    cfg.ArchiveKeep,
		now:     time.Now,
	}
}

// Store lädt eine Bibliographie ins S3 hoch und gibt den Link zurück.
func (a *Archive) Store(ctx context.Context, fileName string, data []byte) (string, error) {
	key := archiveKey(a.now(), fileName)
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-bibtex"),
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", a.BaseURL, a.Bucket, key), nil
}

// Prune löscht alle Archivkopien bis auf die neuesten Keep.
func (a *Archive) Prune(ctx context.Context) (int, error) {
	if a.Keep <= 0 {
		return 0, nil
	}
	var objects []types.Object
	input := &s3.ListObjectsV2Input{Bucket: aws.String(a.Bucket), Prefix: aws.String(archivePrefix)}
	for {
		out, err := a.Client.ListObjectsV2(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("list archive: %w", err)
		}
		objects = append(objects, out.Contents...)
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}

	deleted := 0
	for _, key := range expiredKeys(objects, a.Keep) {
		_, err := a.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}

// archiveKey sorts lexically by upload time.
func archiveKey(t time.Time, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "bibliography.bib"
	}
	return fmt.Sprintf("%s%s-%s", archivePrefix, t.UTC().Format("20060102T150405.000000000Z"), name)
}

// expiredKeys returns the keys of all but the keep newest objects.
func expiredKeys(objects []types.Object, keep int) []string {
	if len(objects) <= keep {
		return nil
	}
	sorted := make([]types.Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool {
		return aws.ToString(sorted[i].Key) > aws.ToString(sorted[j].Key)
	})
	var keys []string
	for _, obj := range sorted[keep:] {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys
}
