// Package reliability uploads published catalog snapshots to object storage
// and rotates old uploads.
package reliability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const (
	backupTimeLayout = "2006-01-02-150405"
	// minBackupsToKeep survive rotation regardless of age
	minBackupsToKeep = 3
)

// ObjectStore is the part of the S3 client the backup service needs
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SnapshotReader exposes the current catalog snapshot
type SnapshotReader interface {
	Current() (*catalog.Snapshot, error)
}

// BackupConfig locates backups in a bucket
type BackupConfig struct {
	Bucket        string
	Prefix        string
	Format        catalog.Format
	RetentionDays int // 0 keeps everything
}

// BackupInfo describes one uploaded snapshot
type BackupInfo struct {
	Key       string    `json:"key"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// CatalogBackupService uploads the current snapshot as a catalog document.
// Besides the timestamped copy it overwrites a "latest" object, so another
// instance can use it as its s3 catalog source.
type CatalogBackupService struct {
	client ObjectStore
	store  SnapshotReader
	cfg    BackupConfig
	now    func() time.Time
	log    zerolog.Logger
}

// NewCatalogBackupService creates a backup service. An empty format means json.
func NewCatalogBackupService(client ObjectStore, store SnapshotReader, cfg BackupConfig, log zerolog.Logger) *CatalogBackupService {
	if cfg.Format == "" {
		cfg.Format = catalog.FormatJSON
	}
	return &CatalogBackupService{
		client: client,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("service", "catalog_backup").Logger(),
	}
}

// Name returns the job name
func (s *CatalogBackupService) Name() string {
	return "catalog_backup"
}

// Run uploads the current snapshot and rotates old uploads
func (s *CatalogBackupService) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	return s.RotateOldBackups(ctx)
}

// LatestKey is the object overwritten on every upload
func (s *CatalogBackupService) LatestKey() string {
	return s.cfg.Prefix + "latest." + string(s.cfg.Format)
}

// CreateAndUploadBackup encodes the current snapshot and uploads it. It
// returns the key of the timestamped copy.
func (s *CatalogBackupService) CreateAndUploadBackup(ctx context.Context) (string, error) {
	startTime := s.now()

	snap, err := s.store.Current()
	if err != nil {
		return "", fmt.Errorf("failed to read catalog snapshot: %w", err)
	}

	data, err := catalog.Encode(s.cfg.Format, snap.QPUs)
	if err != nil {
		return "", fmt.Errorf("failed to encode catalog snapshot: %w", err)
	}
	checksum := fmt.Sprintf("sha256:%x", sha256.Sum256(data))

	key := fmt.Sprintf("%scatalog-%s-v%d.%s",
		s.cfg.Prefix, startTime.UTC().Format(backupTimeLayout), snap.Version, s.cfg.Format)

	metadata := map[string]string{
		"catalog-version": strconv.FormatUint(snap.Version, 10),
		"catalog-source":  snap.Source,
		"qpu-count":       strconv.Itoa(len(snap.QPUs)),
		"checksum":        checksum,
	}

	for _, k := range []string{key, s.LatestKey()} {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.cfg.Bucket),
			Key:           aws.String(k),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType(s.cfg.Format)),
			Metadata:      metadata,
		})
		if err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", k, err)
		}
	}

	s.log.Info().
		Dur("duration_ms", s.now().Sub(startTime)).
		Str("key", key).
		Uint64("version", snap.Version).
		Int("bytes", len(data)).
		Msg("Catalog backup uploaded")

	return key, nil
}

// ListBackups lists timestamped uploads, newest first
func (s *CatalogBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	prefix := s.cfg.Prefix + "catalog-"
	var backups []BackupInfo
	now := s.now()

	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog backups: %w", err)
		}

		for _, obj := range out.Contents {
			info, ok := parseBackupKey(obj, prefix)
			if !ok {
				s.log.Warn().Str("key", aws.ToString(obj.Key)).Msg("Skipping unrecognized backup object")
				continue
			}
			info.AgeHours = int64(now.Sub(info.Timestamp).Hours())
			backups = append(backups, info)
		}

		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes uploads older than the retention period, always
// keeping the newest few
func (s *CatalogBackupService) RotateOldBackups(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(backup.Key),
		})
		if err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Catalog backup rotation completed")
	return nil
}

// parseBackupKey reads catalog-<timestamp>-v<version>.<ext>
func parseBackupKey(obj types.Object, prefix string) (BackupInfo, bool) {
	key := aws.ToString(obj.Key)
	name := strings.TrimPrefix(key, prefix)
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[:dot]
	}

	sep := strings.LastIndex(name, "-v")
	if sep < 0 {
		return BackupInfo{}, false
	}
	timestamp, err := time.Parse(backupTimeLayout, name[:sep])
	if err != nil {
		return BackupInfo{}, false
	}
	version, err := strconv.ParseUint(name[sep+2:], 10, 64)
	if err != nil {
		return BackupInfo{}, false
	}

	return BackupInfo{
		Key:       key,
		Version:   version,
		Timestamp: timestamp,
		SizeBytes: aws.ToInt64(obj.Size),
	}, true
}

func contentType(format catalog.Format) string {
	switch format {
	case catalog.FormatYAML:
		return "application/yaml"
	case catalog.FormatMsgpack:
		return "application/msgpack"
	}
	return "application/json"
}
