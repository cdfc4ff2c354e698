package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"bookdex/internal/config"
	"bookdex/internal/model"
)

// Source is the boundary to the extraction collaborator: it hands over the
// pages of one crawl pass as (url, raw_text, heading_hierarchy) tuples. How
// they were obtained is not this core's concern.
type Source interface {
	Pages(ctx context.Context) ([]model.DocumentPage, error)
}

type Factory func(args interface{}) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.SourceConfig) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("source.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("source config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}
	return nil
}

func decodePage(data []byte, name string) (model.DocumentPage, error) {
	var page model.DocumentPage
	if err := json.Unmarshal(data, &page); err != nil {
		return page, fmt.Errorf("decode page %s: %w", name, err)
	}
	if page.URL == "" {
		return page, fmt.Errorf("page %s has no url", name)
	}
	return page, nil
}
