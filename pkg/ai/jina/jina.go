package jina

// provider for https://jina.ai/
// - rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/docray-ai/docray/pkg/ai"
)

const (
	NAME = "jina"

	defaultEndpoint = "https://api.jina.ai/v1/rerank"
)

type Driver struct {
	client   *http.Client
	endpoint string
	token    string
	model    string
}

func New(token, endpoint, model string) *Driver {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Driver{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		token:    token,
		model:    model,
	}
}

func (s *Driver) applyBaseHeader(req *http.Request) {
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", "Bearer "+s.token)
}

type RerankRequestBody struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type RerankResponse struct {
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Results []RerankResponseItem `json:"results"`
}

type RerankResponseItem struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

func (s *Driver) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, error) {
	slog.Debug("Rerank", slog.String("driver", NAME), slog.Int("docs", len(docs)))
	request := RerankRequestBody{
		Model: s.model,
		Query: query,
		TopN:  len(docs),
		Documents: lo.Map(docs, func(item *ai.RerankDoc, _ int) string {
			return item.Content
		}),
	}

	raw, _ := json.Marshal(request)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	s.applyBaseHeader(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to request rerank api: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Failed to request rerank api, %s", string(body))
	}

	var result RerankResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	var rank []ai.RankDocItem
	for _, v := range result.Results {
		if v.Index < 0 || v.Index >= len(docs) {
			continue
		}
		rank = append(rank, ai.RankDocItem{
			ID:    docs[v.Index].ID,
			Score: v.RelevanceScore,
		})
	}

	return rank, nil
}
