package repository

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/varoOP/anifeed/internal/domain"
)

// Format is a feed file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", &domain.ValidationError{Field: "out", Reason: "file extension must be .json, .yaml or .yml"}
}

// FileRepository reads and writes feed exports
type FileRepository struct {
	log zerolog.Logger
}

func NewFileRepository(log zerolog.Logger) *FileRepository {
	return &FileRepository{
		log: log.With().Str("module", "repository").Logger(),
	}
}

// Encode writes items to w in the given format
func Encode(w io.Writer, format Format, items []domain.FeedItem) error {
	if items == nil {
		items = []domain.FeedItem{}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "   ")
		if err := enc.Encode(items); err != nil {
			return errors.Wrap(err, "failed to marshal feed")
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return errors.Wrap(err, "failed to marshal yaml")
		}
		if err := enc.Close(); err != nil {
			return errors.Wrap(err, "failed to flush yaml")
		}
	default:
		return errors.Errorf("unsupported format %q", format)
	}

	return nil
}

// Store saves the feed to path, creating parent directories as needed
func (r *FileRepository) Store(ctx context.Context, path string, items []domain.FeedItem) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", path)
	}
	defer f.Close()

	if err := Encode(f, format, items); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	r.log.Debug().Str("path", path).Int("count", len(items)).Msg("stored feed")
	return f.Close()
}

// Get reads a feed previously written by Store
func (r *FileRepository) Get(ctx context.Context, path string) ([]domain.FeedItem, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.NotFoundError{What: "feed file " + path}
		}
		return nil, errors.Wrapf(err, "failed to stat file %s", path)
	}
	if info.IsDir() {
		return nil, errors.Errorf("path is a directory, not a file: %s", path)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %s", path)
	}

	items := []domain.FeedItem{}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(body, &items)
	case FormatYAML:
		err = yaml.Unmarshal(body, &items)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s", path)
	}

	return items, nil
}
