package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ModelInfo describes one model available at the provider.
type ModelInfo struct {
	ID      string
	Created int64
	OwnedBy string
}

// ListModels queries the provider's model catalog, newest first.
func ListModels(ctx context.Context, baseURL, apiKey string) ([]ModelInfo, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	var models []ModelInfo
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:      m.ID,
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].Created > models[j].Created
	})
	return models, nil
}
