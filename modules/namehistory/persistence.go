package namehistory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"namelog/pkg/namelog"
)

// Persistence owns durable storage for the full history document.
type Persistence interface {
	// Load reads the complete document. A missing document yields an empty
	// history and a nil error.
	Load(ctx context.Context) (map[namelog.MemberID][]namelog.ChangeRecord, error)
	// Save writes the complete document, replacing the previous one.
	Save(ctx context.Context, histories map[namelog.MemberID][]namelog.ChangeRecord) error
}

// FilePersistence stores the history document as one JSON file on disk.
//
// Saves go through a temp file in the target directory followed by a rename,
// so readers never observe a partially written document.
type FilePersistence struct {
	path string
}

// NewFilePersistence creates file-backed persistence rooted at path.
func NewFilePersistence(path string) (*FilePersistence, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("new file persistence: empty path")
	}

	return &FilePersistence{path: trimmed}, nil
}

// Path returns the configured document location.
func (p *FilePersistence) Path() string {
	return p.path
}

// Load reads and decodes the document file.
func (p *FilePersistence) Load(ctx context.Context) (map[namelog.MemberID][]namelog.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load history document: %w", err)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[namelog.MemberID][]namelog.ChangeRecord{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", namelog.ErrStoreUnavailable, p.path, err)
	}

	histories, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("load history document %s: %w", p.path, err)
	}

	return histories, nil
}

// Save encodes and atomically replaces the document file.
func (p *FilePersistence) Save(
	ctx context.Context,
	histories map[namelog.MemberID][]namelog.ChangeRecord,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save history document: %w", err)
	}

	data, err := encodeDocument(histories)
	if err != nil {
		return fmt.Errorf("save history document: %w", err)
	}

	directory := filepath.Dir(p.path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %v", namelog.ErrStoreUnavailable, directory, err)
	}

	temp, err := os.CreateTemp(directory, ".namelog-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %v", namelog.ErrStoreUnavailable, directory, err)
	}
	tempPath := temp.Name()
	defer func() { _ = os.Remove(tempPath) }()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		return fmt.Errorf("%w: write %s: %v", namelog.ErrStoreUnavailable, tempPath, err)
	}
	if err := temp.Sync(); err != nil {
		_ = temp.Close()
		return fmt.Errorf("%w: sync %s: %v", namelog.ErrStoreUnavailable, tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", namelog.ErrStoreUnavailable, tempPath, err)
	}

	if err := os.Rename(tempPath, p.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", namelog.ErrStoreUnavailable, p.path, err)
	}

	return nil
}
