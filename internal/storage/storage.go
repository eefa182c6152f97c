package storage

import (
	"fmt"
	"strings"
)

// Package storage provides the durable dedup set and the record sink.

// Store is the durable set of already committed listing ids. It only ever
// grows: ids are appended on commit and never removed, so a restarted crawl
// skips everything a previous run already wrote out.
type Store interface {
	Close() error
	Seen(id string) (bool, error)
	MarkBatch(ids []string) error
	Len() int
}

// NewStore creates the configured dedup backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "file":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("file storage requires a path")
		}
		return openVisitedLog(path)
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() error              { return nil }
func (noopStore) Seen(string) (bool, error) { return false, nil }
func (noopStore) MarkBatch([]string) error  { return nil }
func (noopStore) Len() int                  { return 0 }
