package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xpanvictor/vocall/pkg/Logger"
)

// Cache wraps a Provider with a two-tier content-addressed store: an
// in-process map for the hot path and a directory of μ-law clips that
// survives restarts. The address is sha256 over the provider identity
// plus the exact text, so changing voice, model or settings naturally
// invalidates old entries.
//
// Fallback audio is never cached: a clip is written only when the voice
// that produced it matches the identity the key was derived from.
type Cache struct {
	provider Provider
	dir      string
	logger   *Logger.Logger

	mu  sync.RWMutex
	mem map[string][]byte
}

func NewCache(provider Provider, dir string, logger *Logger.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tts cache: create dir: %w", err)
	}
	return &Cache{
		provider: provider,
		dir:      dir,
		logger:   logger,
		mem:      make(map[string][]byte),
	}, nil
}

func (c *Cache) Name() string     { return "cache(" + c.provider.Name() + ")" }
func (c *Cache) Identity() string { return c.provider.Identity() }

func (c *Cache) Synthesize(ctx context.Context, text string) (*Result, error) {
	key := c.key(text)

	if mulaw, ok := c.fromMemory(key); ok {
		return c.cachedResult(mulaw, text), nil
	}
	if mulaw, ok := c.fromDisk(key); ok {
		c.toMemory(key, mulaw)
		return c.cachedResult(mulaw, text), nil
	}

	result, err := c.provider.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if result.Identity == c.provider.Identity() {
		c.store(key, result.MuLaw)
	}
	return result, nil
}

// Prewarm synthesizes the given phrases ahead of any call so the first
// greeting plays from cache instead of waiting on a provider.
func (c *Cache) Prewarm(ctx context.Context, phrases []string) {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if _, err := c.Synthesize(ctx, phrase); err != nil {
			c.logger.Warnf("tts prewarm failed for %q: %v", phrase, err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
	c.logger.Infof("tts cache prewarmed with %d phrases", len(phrases))
}

func (c *Cache) Close() error { return c.provider.Close() }

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(c.provider.Identity() + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) fromMemory(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mulaw, ok := c.mem[key]
	return mulaw, ok
}

func (c *Cache) toMemory(key string, mulaw []byte) {
	c.mu.Lock()
	c.mem[key] = mulaw
	c.mu.Unlock()
}

func (c *Cache) fromDisk(key string) ([]byte, bool) {
	mulaw, err := os.ReadFile(c.path(key))
	if err != nil || len(mulaw) == 0 {
		return nil, false
	}
	return mulaw, true
}

func (c *Cache) store(key string, mulaw []byte) {
	c.toMemory(key, mulaw)
	// Write via temp file so a crash never leaves a torn clip behind.
	tmp, err := os.CreateTemp(c.dir, "clip-*.tmp")
	if err != nil {
		c.logger.Warnf("tts cache: temp file: %v", err)
		return
	}
	if _, err := tmp.Write(mulaw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.logger.Warnf("tts cache: write clip: %v", err)
		return
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warnf("tts cache: rename clip: %v", err)
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".ulaw")
}

func (c *Cache) cachedResult(mulaw []byte, text string) *Result {
	return &Result{
		MuLaw:     mulaw,
		Identity:  c.provider.Identity(),
		Duration:  durationOf(mulaw),
		CharCount: len(text),
	}
}

var _ Provider = (*Cache)(nil)
