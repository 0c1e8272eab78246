package adapter

import (
	"fmt"
	"sync"

	"github.com/quillchat/quill-engine/pkg/logger"
	"github.com/quillchat/quill-engine/pkg/metrics"
)

// cacheKey identifies one live adapter instance.
type cacheKey struct {
	backend Backend
	baseURL string
	apiKey  string
}

// Factory resolves a backend and credentials to a cached adapter
// instance: at most one live adapter per (backend, baseURL, apiKey)
// tuple, held for the process lifetime until invalidated. The factory is
// passed by reference to its consumers rather than living as a package
// singleton.
type Factory struct {
	mu     sync.Mutex
	cache  map[cacheKey]Adapter
	logger *logger.Logger
}

// NewFactory creates an empty adapter factory.
func NewFactory(log *logger.Logger) *Factory {
	return &Factory{
		cache:  make(map[cacheKey]Adapter),
		logger: log,
	}
}

// GetOrCreate returns the cached adapter for the key, creating it on
// first use.
func (f *Factory) GetOrCreate(backend Backend, creds Credentials) (Adapter, error) {
	key := cacheKey{backend: backend, baseURL: creds.BaseURL, apiKey: creds.APIKey}

	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.cache[key]; ok {
		return a, nil
	}

	a, err := f.create(backend, creds)
	if err != nil {
		return nil, err
	}

	f.cache[key] = a
	metrics.AdapterCacheSize.Set(float64(len(f.cache)))
	f.logger.Debug("adapter created", "backend", backend, "base_url", creds.BaseURL)
	return a, nil
}

func (f *Factory) create(backend Backend, creds Credentials) (Adapter, error) {
	switch backend {
	case BackendOpenAI:
		return NewOpenAIAdapter(creds)
	case BackendAnthropic:
		return NewAnthropicAdapter(creds)
	case BackendOpenAILike, BackendDeepSeek:
		return NewCompatAdapter(backend, creds, f.logger)
	case BackendOllama:
		return NewOllamaAdapter(creds, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// Invalidate drops cached adapters for the given backends, or all cached
// adapters when none are named. Called after credential edits.
func (f *Factory) Invalidate(backends ...Backend) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(backends) == 0 {
		f.cache = make(map[cacheKey]Adapter)
	} else {
		for key := range f.cache {
			for _, b := range backends {
				if key.backend == b {
					delete(f.cache, key)
					break
				}
			}
		}
	}
	metrics.AdapterCacheSize.Set(float64(len(f.cache)))
}

// Size returns the number of live adapter instances.
func (f *Factory) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}
