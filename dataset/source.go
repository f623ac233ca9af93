package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/spf13/afero"
)

// Source is a dataset backend. Load returns an error wrapping
// models.ErrNotFound when the dataset does not exist in this source.
type Source interface {
	Name() string
	Load(ctx context.Context, name string) (*models.Table, error)
}

var archiveSuffixes = []string{".gz", ".lz4", ".zst", ".zip"}

var specialSymbols = regexp.MustCompile("[^a-z0-9]+")

// NormalizeName maps a dataset name or file name to its logical name:
// "Accounts.csv.gz" and "accounts" both become "accounts".
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(unidecode.Unidecode(name)))
	for _, suffix := range archiveSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	s = strings.TrimSuffix(s, ".csv")

	// Replace all non-alphanumeric characters with underscores
	s = specialSymbols.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// FileSource reads datasets from a filesystem, plain or compressed.
type FileSource struct {
	fs afero.Fs
}

func NewFileSource(fs afero.Fs) *FileSource {
	return &FileSource{fs: fs}
}

// NewDirSource reads datasets from a directory on the OS filesystem.
func NewDirSource(dir string) *FileSource {
	return NewFileSource(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Load(ctx context.Context, name string) (*models.Table, error) {
	for _, key := range candidateKeys(name) {
		info, err := s.fs.Stat(key)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		f, err := s.fs.Open(key)
		if err != nil {
			return nil, err
		}
		t, err := readTable(key, f, name)
		f.Close()
		return t, err
	}
	return nil, fmt.Errorf("%s: %w", name, models.ErrNotFound)
}

func readTable(key string, src io.Reader, name string) (*models.Table, error) {
	rc, err := unpackArchive(key, src)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", key, err)
	}
	defer rc.Close()
	t, err := ParseCSV(rc, name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return t, nil
}
