// Package storage keeps case documents in an external object store.
package storage

import (
	"context"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the object storage used for case documents.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	SignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
	// Delete is idempotent: removing a missing object succeeds.
	Delete(ctx context.Context, key string) error
}

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds a per-case key: case/<caseID>/<random>-<filename>. The
// random part keeps two uploads of the same filename apart.
func ObjectKey(caseID, filename string) string {
	name := reUnsafe.ReplaceAllString(path.Base(strings.TrimSpace(filename)), "_")
	if name == "" || name == "." || name == "_" {
		name = "file"
	}
	return path.Join("case", caseID, uuid.NewString()[:8]+"-"+name)
}
