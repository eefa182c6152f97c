package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package feeds holds the seed feed registry (YAML/JSON config). Each feed is
// one partition of the catalog, typically a brand group, kept small enough to
// stay under the site's pagination ceiling.

// Feed describes one seed search URL and how to paginate it.
type Feed struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	BaseURL   string         `json:"base_url" yaml:"base_url"`
	PageParam string         `json:"page_param" yaml:"page_param"`
	Config    map[string]any `json:"config" yaml:"config"`
}

type registryFile struct {
	Feeds []Feed `json:"feeds" yaml:"feeds"`
}

// Registry materializes feed definitions loaded from a config file.
type Registry struct {
	feeds []Feed
	idx   map[string]Feed
}

const defaultPageParam = "page"

// LoadRegistry loads the feed registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("feeds file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feeds file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	fileReg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Feeds) == 0 {
		return nil, errors.New("feeds file contains no feeds entries")
	}

	reg := &Registry{
		feeds: make([]Feed, len(fileReg.Feeds)),
		idx:   make(map[string]Feed, len(fileReg.Feeds)),
	}

	for i := range fileReg.Feeds {
		f := sanitizeFeed(fileReg.Feeds[i])
		if err := validateFeed(f); err != nil {
			return nil, fmt.Errorf("feeds[%d]: %w", i, err)
		}
		if _, exists := reg.idx[f.ID]; exists {
			return nil, fmt.Errorf("duplicate feed id %q", f.ID)
		}
		reg.feeds[i] = f
		reg.idx[f.ID] = f
	}

	return reg, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("feeds file format not recognized (expected YAML or JSON)")
}

func unmarshalRegistry(name string, data []byte, fn func([]byte, any) error) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s feeds: %w", name, err)
	}
	return reg, nil
}

func sanitizeFeed(f Feed) Feed {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	f.BaseURL = strings.TrimSpace(f.BaseURL)
	f.PageParam = strings.TrimSpace(f.PageParam)

	if f.PageParam == "" {
		f.PageParam = defaultPageParam
	}
	if f.Config == nil {
		f.Config = map[string]any{}
	}

	return f
}

func validateFeed(f Feed) error {
	if f.ID == "" {
		return errors.New("id is required")
	}
	if f.Name == "" {
		return fmt.Errorf("name is required for feed %q", f.ID)
	}
	if f.BaseURL == "" {
		return fmt.Errorf("base_url is required for feed %q", f.ID)
	}
	if _, err := url.Parse(f.BaseURL); err != nil {
		return fmt.Errorf("base_url for feed %q: %w", f.ID, err)
	}
	return nil
}

// All returns a copy of the configured feeds in file order.
func (r *Registry) All() []Feed {
	if r == nil {
		return nil
	}
	out := make([]Feed, len(r.feeds))
	copy(out, r.feeds)
	return out
}

// ByID returns the feed entry for the given id, if loaded.
func (r *Registry) ByID(id string) (Feed, bool) {
	if r == nil {
		return Feed{}, false
	}
	f, ok := r.idx[strings.TrimSpace(id)]
	return f, ok
}

// PageURL extends the feed's base URL with the page-number query parameter.
func (f Feed) PageURL(page int) string {
	parsed, err := url.Parse(f.BaseURL)
	if err != nil {
		// validated at load time; fall back to a raw suffix just in case
		return f.BaseURL
	}
	q := parsed.Query()
	q.Set(f.PageParam, strconv.Itoa(page))
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
