package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

const snapshotTimeLayout = "20060102T150405Z"

// multipartWriter is implemented by writers that can upload large payloads in
// parts. *Writer satisfies it.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// SnapshotArchiver keeps dated copies of the token list in object storage
// under a key prefix and prunes copies older than the retention window.
type SnapshotArchiver struct {
	writer        domain.BlobWriter
	reader        domain.BlobReader
	deleter       domain.BlobDeleter
	prefix        string
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewSnapshotArchiver creates an archiver. deleter may be nil, in which case
// old snapshots are never pruned. retentionDays <= 0 disables pruning too.
func NewSnapshotArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	deleter domain.BlobDeleter,
	prefix string,
	retentionDays int,
	logger *slog.Logger,
) *SnapshotArchiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotArchiver{
		writer:        writer,
		reader:        reader,
		deleter:       deleter,
		prefix:        prefix,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "snapshot_archiver")),
		now:           time.Now,
	}
}

// keyFor returns the object key of a snapshot taken at t.
func (a *SnapshotArchiver) keyFor(t time.Time) string {
	return a.prefix + "tokens-" + t.UTC().Format(snapshotTimeLayout) + ".json"
}

// Archive uploads list as a new snapshot and prunes expired ones. A prune
// failure is logged and does not fail the upload.
func (a *SnapshotArchiver) Archive(ctx context.Context, list domain.TokenList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	stamp := list.LastUpdated
	if stamp.IsZero() {
		stamp = a.now()
	}
	key := a.keyFor(stamp)

	if mw, ok := a.writer.(multipartWriter); ok && int64(len(data)) > minPartSize {
		err = mw.PutMultipart(ctx, key, bytes.NewReader(data), "application/json", minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive snapshot: %w", err)
	}
	a.logger.InfoContext(ctx, "token snapshot archived",
		slog.String("key", key),
		slog.Int("tokens", len(list.Tokens)),
		slog.Int("bytes", len(data)),
	)

	if pruned, err := a.prune(ctx); err != nil {
		a.logger.WarnContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
	} else if pruned > 0 {
		a.logger.InfoContext(ctx, "old snapshots pruned", slog.Int("count", pruned))
	}
	return nil
}

// Latest downloads the newest snapshot. It returns domain.ErrNotFound when no
// snapshot exists under the prefix.
func (a *SnapshotArchiver) Latest(ctx context.Context) (domain.TokenList, error) {
	infos, err := a.reader.List(ctx, a.prefix+"tokens-")
	if err != nil {
		return domain.TokenList{}, fmt.Errorf("s3blob: list snapshots: %w", err)
	}

	var newest string
	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".json") {
			continue
		}
		// Timestamps in keys sort lexicographically.
		if info.Path > newest {
			newest = info.Path
		}
	}
	if newest == "" {
		return domain.TokenList{}, fmt.Errorf("s3blob: latest snapshot: %w", domain.ErrNotFound)
	}

	body, err := a.reader.Get(ctx, newest)
	if err != nil {
		return domain.TokenList{}, fmt.Errorf("s3blob: latest snapshot: %w", err)
	}
	defer body.Close()

	var list domain.TokenList
	if err := json.NewDecoder(body).Decode(&list); err != nil {
		return domain.TokenList{}, fmt.Errorf("s3blob: decode snapshot %s: %w: %v", newest, domain.ErrParse, err)
	}
	if list.Tokens == nil {
		list.Tokens = []domain.Token{}
	}
	list.TotalCount = len(list.Tokens)
	return list, nil
}

// prune deletes snapshots whose key timestamp is older than the retention
// window. Keys that do not parse are left alone.
func (a *SnapshotArchiver) prune(ctx context.Context) (int, error) {
	if a.deleter == nil || a.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	infos, err := a.reader.List(ctx, a.prefix+"tokens-")
	if err != nil {
		return 0, fmt.Errorf("s3blob: list snapshots: %w", err)
	}

	pruned := 0
	for _, info := range infos {
		stamp, ok := a.stampOf(info.Path)
		if !ok || !stamp.Before(cutoff) {
			continue
		}
		if err := a.deleter.Delete(ctx, info.Path); err != nil {
			return pruned, fmt.Errorf("s3blob: prune %s: %w", info.Path, err)
		}
		pruned++
	}
	return pruned, nil
}

func (a *SnapshotArchiver) stampOf(key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, a.prefix+"tokens-")
	name = strings.TrimSuffix(name, ".json")
	t, err := time.Parse(snapshotTimeLayout, name)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*SnapshotArchiver)(nil)
