package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/you-humble/pdftrack/internal/domain"

	"github.com/gabriel-vasile/mimetype"
)

const (
	partialPrefix = ".partial-"
	maxNameTries  = 1000
)

var ErrNotFound = errors.New("artifact not found")

// diskStore keeps downloaded artifacts in one flat directory. An existing
// artifact is never overwritten; a clash gets a " (n)" suffix instead.
type diskStore struct {
	dir string
}

func NewDiskStore(dir string) (*diskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifacts dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &diskStore{dir: dir}, nil
}

// Put writes r under name. When size is positive the body must be exactly
// that long.
func (s *diskStore) Put(ctx context.Context, r io.Reader, name string, size int64) (domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}

	name, err := cleanName(name)
	if err != nil {
		return domain.Artifact{}, err
	}

	tmp, err := os.CreateTemp(s.dir, partialPrefix+"*")
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("create partial file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("write artifact: %w", err)
	}
	if size > 0 && n != size {
		return domain.Artifact{}, fmt.Errorf("truncated artifact: got %d bytes, want %d", n, size)
	}
	if err := tmp.Close(); err != nil {
		return domain.Artifact{}, fmt.Errorf("close partial file: %w", err)
	}

	final, err := s.claim(tmp.Name(), name)
	if err != nil {
		return domain.Artifact{}, err
	}

	a, err := s.describe(final)
	if err != nil {
		return domain.Artifact{}, err
	}
	a.SHA256 = hex.EncodeToString(h.Sum(nil))
	return a, nil
}

// claim links the partial file to the first free variant of name. A hard
// link fails when the target exists, so two writers never share a name.
func (s *diskStore) claim(partial, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameTries; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}

		err := os.Link(partial, filepath.Join(s.dir, candidate))
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("store artifact %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free name for %s", name)
}

func (s *diskStore) Get(ctx context.Context, name string) (io.ReadCloser, domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Artifact{}, err
	}

	name, err := cleanName(name)
	if err != nil {
		return nil, domain.Artifact{}, err
	}

	a, err := s.describe(name)
	if err != nil {
		return nil, domain.Artifact{}, err
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return nil, domain.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	return f, a, nil
}

func (s *diskStore) Remove(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// List returns the stored artifacts, newest first. Hashes are not computed.
func (s *diskStore) List(ctx context.Context) ([]domain.Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read artifacts dir: %w", err)
	}

	out := make([]domain.Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), partialPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := s.describe(e.Name())
		if err != nil {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

func (s *diskStore) describe(name string) (domain.Artifact, error) {
	p := filepath.Join(s.dir, name)

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}

	a := domain.Artifact{
		Name:    name,
		Size:    info.Size(),
		Path:    p,
		ModTime: info.ModTime(),
	}
	if mt, err := mimetype.DetectFile(p); err == nil {
		a.MIMEType = domain.MediaType(mt.String())
	}
	return a, nil
}

// cleanName keeps only the last element of a server-supplied name.
func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if strings.HasPrefix(base, partialPrefix) {
		return "", fmt.Errorf("reserved artifact name %q", name)
	}
	return base, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
