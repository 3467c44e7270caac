package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/use-agent/pagehealth/config"
)

// Mirror copies finished run artifacts into an S3-compatible bucket.
// Object keys follow the local layout: runs/<run_id>/<filename>.
type Mirror struct {
	mc     *minio.Client
	bucket string
}

// NewMirror builds a Mirror from config. It returns (nil, nil) when no
// endpoint is configured.
func NewMirror(cfg config.ArtifactsConfig) (*Mirror, error) {
	if !cfg.MirrorEnabled() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("artifacts: mirror config: %w", err)
	}
	mc, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: mirror client: %w", err)
	}
	return &Mirror{mc: mc, bucket: cfg.S3Bucket}, nil
}

// ObjectKey returns the bucket key for an artifact.
func ObjectKey(runID, filename string) string {
	return "runs/" + runID + "/" + filename
}

// UploadRun uploads the named files of a run. Missing files are skipped.
// It returns the number of objects written and the first error seen;
// remaining files are still attempted after a failure.
func (m *Mirror) UploadRun(ctx context.Context, store *Store, runID string, filenames []string) (int, error) {
	var (
		uploaded int
		firstErr error
	)
	for _, fn := range filenames {
		p := filepath.Join(store.RunDir(runID), fn)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_, err := m.mc.FPutObject(ctx, m.bucket, ObjectKey(runID, fn), p, minio.PutObjectOptions{
			ContentType: "image/png",
		})
		if err != nil {
			slog.Warn("artifact mirror upload failed",
				"run_id", runID, "file", fn, "bucket", m.bucket, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded++
	}
	return uploaded, firstErr
}
