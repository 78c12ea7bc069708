// Package refstore keeps student reference photos on local disk as
// {student}_{view}_{YYYYmmdd_HHMMSS}.png files.
package refstore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
)

const (
	fileExt         = ".png"
	timestampLayout = "20060102_150405"
	maxKeyLength    = 128
)

// ErrInvalidKey is returned for student IDs or views that cannot be encoded
// into a file name.
var ErrInvalidKey = errors.New("invalid reference key")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.@-]*$`)

// FileStore stores reference images in a single directory
type FileStore struct {
	dir string
	now func() time.Time
}

// Option configures a FileStore
type Option func(*FileStore)

// WithClock overrides the clock used to timestamp uploads
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reference dir: %w", err)
	}

	s := &FileStore{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateKey checks that a student ID or view can be part of a file name
func ValidateKey(key string) error {
	if len(key) == 0 || len(key) > maxKeyLength || !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Save writes img as PNG and returns its descriptor
func (s *FileStore) Save(ctx context.Context, studentID, view string, img image.Image) (*domain.ReferenceImage, error) {
	if err := ValidateKey(studentID); err != nil {
		return nil, err
	}
	if err := ValidateKey(view); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := imaging.EncodePNG(imaging.ToRGBA(img))
	if err != nil {
		return nil, fmt.Errorf("save reference: %w", err)
	}

	ts := s.now().UTC().Truncate(time.Second)
	filename := fmt.Sprintf("%s_%s_%s%s", studentID, view, ts.Format(timestampLayout), fileExt)
	path := filepath.Join(s.dir, filename)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("save reference: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("save reference: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("save reference: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("save reference: %w", err)
	}

	return &domain.ReferenceImage{
		Filename:  filename,
		StudentID: studentID,
		View:      view,
		Timestamp: ts,
		Size:      int64(len(data)),
		Path:      path,
	}, nil
}

// List returns the student's images sorted by view, then oldest first
func (s *FileStore) List(ctx context.Context, studentID string) ([]domain.ReferenceImage, error) {
	if err := ValidateKey(studentID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.ReferenceImage{}, nil
		}
		return nil, fmt.Errorf("list references: %w", err)
	}

	refs := make([]domain.ReferenceImage, 0)
	prefix := studentID + "_"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		ref, ok := parseFilename(name)
		if !ok || ref.StudentID != studentID {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ref.Size = info.Size()
		ref.Path = filepath.Join(s.dir, name)
		refs = append(refs, ref)
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].View != refs[j].View {
			return refs[i].View < refs[j].View
		}
		return refs[i].Timestamp.Before(refs[j].Timestamp)
	})

	return refs, nil
}

// Open decodes a stored image
func (s *FileStore) Open(ctx context.Context, ref domain.ReferenceImage) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := ref.Path
	if path == "" {
		path = filepath.Join(s.dir, filepath.Base(ref.Filename))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open reference %s: %w", ref.Filename, err)
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("open reference %s: %w", ref.Filename, err)
	}
	return img, nil
}

// parseFilename splits {student}_{view}_{date}_{time}.png
func parseFilename(name string) (domain.ReferenceImage, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return domain.ReferenceImage{}, false
	}
	parts := strings.Split(strings.TrimSuffix(name, fileExt), "_")
	if len(parts) != 4 {
		return domain.ReferenceImage{}, false
	}

	ts, err := time.Parse(timestampLayout, parts[2]+"_"+parts[3])
	if err != nil {
		return domain.ReferenceImage{}, false
	}

	return domain.ReferenceImage{
		Filename:  name,
		StudentID: parts[0],
		View:      parts[1],
		Timestamp: ts,
	}, true
}
