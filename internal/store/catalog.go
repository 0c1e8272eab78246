package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

// Catalog loads provider definitions from a TOML file and merges them
// into the provider records in history. The file is the declarative
// source for connection settings and model lists; enabled toggles made
// through the API are preserved across reloads.
type Catalog struct {
	path     string
	history  *History
	logger   *logger.Logger
	onChange func()
}

// NewCatalog creates a catalog bound to a providers file.
func NewCatalog(path string, history *History, log *logger.Logger, onChange func()) *Catalog {
	return &Catalog{
		path:     path,
		history:  history,
		logger:   log,
		onChange: onChange,
	}
}

type catalogFile struct {
	Providers []catalogProvider `toml:"providers"`
}

type catalogProvider struct {
	ID      string         `toml:"id"`
	Name    string         `toml:"name"`
	Backend string         `toml:"backend"`
	BaseURL string         `toml:"base_url"`
	APIKey  string         `toml:"api_key"`
	Enabled *bool          `toml:"enabled"`
	Models  []catalogModel `toml:"models"`
}

type catalogModel struct {
	ID            string   `toml:"id"`
	Name          string   `toml:"name"`
	Type          string   `toml:"type"`
	Enabled       *bool    `toml:"enabled"`
	ContextWindow int      `toml:"context_window"`
	MaxOutput     int      `toml:"max_output"`
	Capabilities  []string `toml:"capabilities"`
}

// Load parses the providers file and upserts its providers into history.
// A missing file is not an error; the catalog is then whatever the API
// has stored.
func (c *Catalog) Load(ctx context.Context) error {
	var file catalogFile
	if _, err := toml.DecodeFile(c.path, &file); err != nil {
		if os.IsNotExist(err) {
			c.logger.Info("providers file not present, skipping catalog load", "path", c.path)
			return nil
		}
		return fmt.Errorf("failed to parse providers file: %w", err)
	}

	existing, err := c.history.Providers(ctx)
	if err != nil {
		return err
	}
	prior := make(map[string]model.Provider, len(existing))
	for _, p := range existing {
		prior[p.ID] = p
	}

	now := time.Now()
	for _, cp := range file.Providers {
		p := c.toProvider(cp, now)
		if old, ok := prior[p.ID]; ok {
			p.CreatedAt = old.CreatedAt
			mergeToggles(&p, &old)
		}
		if err := c.history.SaveProvider(ctx, &p); err != nil {
			return err
		}
	}

	c.logger.Info("provider catalog loaded", "path", c.path, "providers", len(file.Providers))
	return nil
}

func (c *Catalog) toProvider(cp catalogProvider, now time.Time) model.Provider {
	id := cp.ID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	p := model.Provider{
		ID:        id,
		Name:      cp.Name,
		Backend:   cp.Backend,
		BaseURL:   cp.BaseURL,
		APIKey:    cp.APIKey,
		Enabled:   cp.Enabled == nil || *cp.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, cm := range cp.Models {
		mt := model.ModelType(cm.Type)
		if mt == "" {
			mt = model.ModelTypeChat
		}
		caps := make([]model.Capability, 0, len(cm.Capabilities))
		for _, cap := range cm.Capabilities {
			caps = append(caps, model.Capability(cap))
		}
		p.Models = append(p.Models, model.ModelInfo{
			ID:            cm.ID,
			Name:          cm.Name,
			Type:          mt,
			Enabled:       cm.Enabled == nil || *cm.Enabled,
			ContextWindow: cm.ContextWindow,
			MaxOutput:     cm.MaxOutput,
			Capabilities:  caps,
		})
	}
	return p
}

// mergeToggles carries API-made enabled toggles over a file reload when
// the file itself does not pin the flag.
func mergeToggles(next *model.Provider, old *model.Provider) {
	oldModels := make(map[string]model.ModelInfo, len(old.Models))
	for _, m := range old.Models {
		oldModels[m.ID] = m
	}
	for i := range next.Models {
		if om, ok := oldModels[next.Models[i].ID]; ok && !om.Enabled {
			next.Models[i].Enabled = false
		}
	}
	if !old.Enabled {
		next.Enabled = false
	}
}

// Watch reloads the catalog whenever the providers file changes, until
// ctx is cancelled. Reload failures are logged and the previous catalog
// stays in effect.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops
	// a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch providers dir: %w", err)
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != c.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					if err := c.Load(ctx); err != nil {
						c.logger.Error("catalog reload failed", "error", err)
						return
					}
					if c.onChange != nil {
						c.onChange()
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("catalog watcher error", "error", err)
			}
		}
	}()

	return nil
}
