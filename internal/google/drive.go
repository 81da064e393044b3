package google

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"proactive/internal/models"
	"proactive/internal/source"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const untitledFile = "Arquivo sem nome"

// DriveClient reads recently modified files from Google Drive.
type DriveClient struct {
	service  *drive.Service
	logger   *slog.Logger
	lookback time.Duration
	limit    int64
	now      func() time.Time
}

// NewDriveClient creates a Drive client returning at most limit files modified within lookback.
func NewDriveClient(ctx context.Context, logger *slog.Logger, lookback time.Duration, limit int64, opts ...option.ClientOption) (*DriveClient, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveClient{service: service, logger: logger, lookback: lookback, limit: limit, now: time.Now}, nil
}

// Recent fetches files modified within the lookback, most recent first.
func (c *DriveClient) Recent(ctx context.Context) ([]models.DriveFile, error) {
	since := c.now().UTC().Add(-c.lookback)
	query := fmt.Sprintf("modifiedTime > '%s'", since.Format(time.RFC3339))
	c.logger.Debug("Fetching recent files", "query", query, "limit", c.limit)

	res, err := c.service.Files.List().
		Q(query).
		OrderBy("modifiedTime desc").
		PageSize(c.limit).
		Fields("nextPageToken, files(id, name, modifiedTime, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list drive files: %w", err)
	}

	out := make([]models.DriveFile, 0, len(res.Files))
	for _, f := range res.Files {
		if int64(len(out)) == c.limit {
			break
		}
		modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil || modified.Before(since) {
			c.logger.Debug("Ignoring file outside the lookback window", "id", f.Id, "modifiedTime", f.ModifiedTime)
			continue
		}
		name := f.Name
		if name == "" {
			name = untitledFile
		}
		out = append(out, models.DriveFile{ID: f.Id, Name: name, ModifiedTime: modified, MimeType: f.MimeType})
	}
	return out, nil
}

// DriveSource adapts client to a Source. A nil client yields an uninitialized source.
func DriveSource(logger *slog.Logger, client *DriveClient) *source.Adapter[models.DriveFile] {
	var fetch source.FetchFunc[models.DriveFile]
	if client != nil {
		fetch = client.Recent
	}
	return source.NewAdapter("drive", fetch, logger, Classify)
}
