package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SourceFile is one file in a codebase snapshot. ContentHash identifies
// the exact bytes and is the cache key component; Content carries the
// bytes for plugins that need them.
type SourceFile struct {
	Path        string
	ContentHash string
	Content     []byte
}

// Request identifies a codebase snapshot to scan: the target files with
// their content hashes, the resolved configuration, and an optional
// deadline after which in-flight plugin work is abandoned.
type Request struct {
	ID       string
	Files    []SourceFile
	Config   Config
	Deadline time.Time
}

// NewRequest builds a Request with a fresh ID. Files missing a content
// hash get one computed from their bytes.
func NewRequest(files []SourceFile, cfg Config) *Request {
	for i := range files {
		if files[i].ContentHash == "" {
			files[i].ContentHash = HashContent(files[i].Content)
		}
	}
	return &Request{
		ID:     uuid.New().String(),
		Files:  files,
		Config: cfg,
	}
}

// HashContent returns the hex SHA-256 digest of a file's bytes.
func HashContent(content []byte) string {
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:])
}
