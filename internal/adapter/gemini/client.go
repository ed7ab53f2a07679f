// Package gemini implements embedding and generation over the Gemini API.
// The API key is read from the settings row on every call so it can be
// rotated without a restart.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"docqa/internal/provider"
	"docqa/internal/rag"
	"docqa/internal/settings"
)

const providerName = "gemini"

type KeySource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// clientCache holds one genai client per API key and swaps it when the key changes.
type clientCache struct {
	keys        KeySource
	fallbackKey string
	opts        []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
	// retired clients may still serve in-flight calls; closed with the cache.
	retired []*genai.Client
}

func newClientCache(keys KeySource, fallbackKey string, opts []option.ClientOption) *clientCache {
	return &clientCache{keys: keys, fallbackKey: fallbackKey, opts: opts}
}

func (c *clientCache) get(ctx context.Context) (*genai.Client, error) {
	key := c.fallbackKey
	if c.keys != nil {
		s, err := c.keys.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get settings: %w", err)
		}
		if s.GeminiAPIKey != "" {
			key = s.GeminiAPIKey
		}
	}
	if key == "" {
		return nil, fmt.Errorf("%w: gemini api key not configured", rag.ErrConfiguration)
	}
	return c.clientFor(ctx, key)
}

func (c *clientCache) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	opts := append(append([]option.ClientOption{}, c.opts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		c.retired = append(c.retired, c.client)
		slog.Info("gemini api key changed, switching client")
	}
	c.client = client
	c.currentKey = key
	return client, nil
}

func (c *clientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, old := range c.retired {
		errs = append(errs, old.Close())
	}
	c.retired = nil
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	c.client = nil
	c.currentKey = ""
	return errors.Join(errs...)
}

// classify turns API errors into *provider.StatusError so the retry policy
// can tell rate limits and outages from bad requests.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierror.APIError
	if errors.As(err, &ae) && ae.HTTPCode() > 0 {
		return &provider.StatusError{Code: ae.HTTPCode(), Body: ae.Error()}
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return &provider.StatusError{Code: ge.Code, Body: ge.Message}
	}
	return err
}
