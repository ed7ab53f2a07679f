package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docqa/internal/provider"
)

type GeneratorConfig struct {
	Model       string
	Temperature float32
	Policy      provider.RetryPolicy
	Limiter     *provider.Limiter
}

type Generator struct {
	clients *clientCache
	cfg     GeneratorConfig
}

func NewGenerator(keys KeySource, fallbackKey string, cfg GeneratorConfig, opts ...option.ClientOption) *Generator {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Generator{clients: newClientCache(keys, fallbackKey, opts), cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, prompt provider.Prompt, maxTokens int) (string, error) {
	var out string
	err := g.cfg.Policy.Do(ctx, providerName, "generate", func(ctx context.Context) error {
		if err := g.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		client, err := g.clients.get(ctx)
		if err != nil {
			return err
		}

		model := client.GenerativeModel(g.cfg.Model)
		model.SetTemperature(g.cfg.Temperature)
		if maxTokens > 0 {
			model.SetMaxOutputTokens(int32(maxTokens))
		}

		if prompt.System != "" {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt.User))
		if err != nil {
			return classify(err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return fmt.Errorf("no candidates in response")
		}

		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		out = b.String()
		return nil
	})
	return out, err
}

func (g *Generator) Close() error {
	return g.clients.Close()
}
