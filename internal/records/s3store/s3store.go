// Package s3store keeps identity records and audit entries as JSON objects
// in an S3-compatible bucket:
//
//	identities/<id>.json
//	email-index/<emailHash>    body is the record id
//	audit/<ulid>.json
//
// Writes are last-writer-wins; the bucket enforces no business rules.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/records"
)

const (
	identityPrefix = "identities/"
	emailPrefix    = "email-index/"
	auditPrefix    = "audit/"
	jsonSuffix     = ".json"
)

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectAPI is the part of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

type Store struct {
	api    objectAPI
	bucket string
	clock  clock.Clock
}

// New builds an S3 client from cfg using static credentials and path-style
// addressing, which S3-compatible servers such as MinIO expect.
func New(ctx context.Context, cfg Config, clk clock.Clock) (*Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return newWithAPI(client, cfg.Bucket, clk), nil
}

func newWithAPI(api objectAPI, bucket string, clk clock.Clock) *Store {
	return &Store{api: api, bucket: bucket, clock: clk}
}

func identityKey(id string) string { return identityPrefix + id + jsonSuffix }

func (s *Store) GetIdentity(ctx context.Context, id string) (*records.IdentityRecord, error) {
	rec := &records.IdentityRecord{}
	if err := s.getJSON(ctx, identityKey(id), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) PutIdentity(ctx context.Context, rec *records.IdentityRecord) (*records.IdentityRecord, error) {
	stored := *rec

	prev, err := s.GetIdentity(ctx, rec.ID)
	switch {
	case err == nil:
		stored.CreatedAt = prev.CreatedAt
	case errors.Is(err, records.ErrNotFound):
		stored.CreatedAt = s.clock.Now().UTC()
	default:
		return nil, err
	}

	if err := s.putJSON(ctx, identityKey(rec.ID), &stored); err != nil {
		return nil, err
	}
	// A stale index entry left by an email change is harmless:
	// FindByEmailHash re-checks the hash on the record it points to.
	if stored.EmailHash != "" {
		if err := s.put(ctx, emailPrefix+stored.EmailHash, []byte(stored.ID), "text/plain"); err != nil {
			return nil, err
		}
	}
	return &stored, nil
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, u records.RecordUpdate) error {
	rec, err := s.GetIdentity(ctx, id)
	if err != nil {
		return err
	}
	if u.Empty() {
		return nil
	}
	u.Apply(rec)
	return s.putJSON(ctx, identityKey(id), rec)
}

func (s *Store) ListIdentities(ctx context.Context) ([]records.IdentityRecord, error) {
	keys, err := s.listKeys(ctx, identityPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]records.IdentityRecord, 0, len(keys))
	for _, key := range keys {
		var rec records.IdentityRecord
		if err := s.getJSON(ctx, key, &rec); err != nil {
			if errors.Is(err, records.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) FindByEmailHash(ctx context.Context, hash string) (*records.IdentityRecord, error) {
	id, err := s.get(ctx, emailPrefix+hash)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetIdentity(ctx, string(id))
	if err != nil {
		return nil, err
	}
	if rec.EmailHash != hash {
		return nil, records.ErrNotFound
	}
	return rec, nil
}

func (s *Store) AppendAudit(ctx context.Context, e *records.AuditEntry) (*records.AuditEntry, error) {
	stored := *e
	stored.Timestamp = s.clock.Now().UTC()
	stored.ID = records.NewAuditID(stored.Timestamp)

	if err := s.putJSON(ctx, auditPrefix+stored.ID+jsonSuffix, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) ListAudit(ctx context.Context, q records.AuditQuery) (records.AuditPage, error) {
	keys, err := s.listKeys(ctx, auditPrefix)
	if err != nil {
		return records.AuditPage{}, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, auditPrefix), jsonSuffix)
		if q.Before != "" && id >= q.Before {
			continue
		}
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	limit := q.Size()
	var page records.AuditPage
	if len(ids) > limit {
		ids = ids[:limit]
		page.NextCursor = ids[limit-1]
	}

	for _, id := range ids {
		var e records.AuditEntry
		if err := s.getJSON(ctx, auditPrefix+id+jsonSuffix, &e); err != nil {
			return records.AuditPage{}, err
		}
		page.Entries = append(page.Entries, e)
	}
	return page, nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("s3 decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("s3 encode %s: %w", key, err)
	}
	return s.put(ctx, key, data, "application/json")
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, records.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}
