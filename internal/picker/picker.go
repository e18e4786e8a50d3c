// Package picker turns paths coming from the command line or from a terminal
// drag-and-drop into selected files.
package picker

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/you-humble/pdftrack/internal/domain"
)

// FromPath describes the file at path. The MIME type is sniffed from the
// content, not taken from the extension.
func FromPath(path string) (domain.SelectedFile, error) {
	if strings.TrimSpace(path) == "" {
		return domain.SelectedFile{}, fmt.Errorf("empty path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.SelectedFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.SelectedFile{}, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return domain.SelectedFile{}, fmt.Errorf("detect type of %s: %w", path, err)
	}

	return domain.SelectedFile{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: domain.MediaType(mt.String()),
		Path:     path,
	}, nil
}

// ParseDropped normalises what a terminal pastes when a file is dragged onto
// it: quoted paths, file:// URLs and backslash-escaped spaces.
func ParseDropped(line string) string {
	p := strings.TrimSpace(line)
	if len(p) >= 2 {
		if (p[0] == '\'' && p[len(p)-1] == '\'') || (p[0] == '"' && p[len(p)-1] == '"') {
			return p[1 : len(p)-1]
		}
	}

	if strings.HasPrefix(p, "file://") {
		if u, err := url.Parse(p); err == nil {
			return u.Path
		}
	}

	return strings.ReplaceAll(p, `\ `, " ")
}
