package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Searcher ranks products by free-text relevance. The catalog repository
// stays the source of truth; a Searcher only holds a copy for ranking.
type Searcher interface {
	Index(ctx context.Context, product Product) error
	Remove(ctx context.Context, id string) error
	// Search returns the ids of matching products, best match first.
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// DefaultIndexName is used when no index name is configured.
const DefaultIndexName = "ecobazaar_products"

const productMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":            { "type": "keyword" },
      "slug":          { "type": "keyword" },
      "name":          { "type": "text", "fields": { "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description":   { "type": "text" },
      "category":      { "type": "text", "fields": { "keyword": { "type": "keyword" } } },
      "seller_id":     { "type": "keyword" },
      "carbon_kg":     { "type": "double" },
      "eco_certified": { "type": "boolean" }
    }
  }
}`

// searchDocument is the indexed form of a Product.
type searchDocument struct {
	ID           string  `json:"id"`
	Slug         string  `json:"slug"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Category     string  `json:"category"`
	SellerID     string  `json:"seller_id"`
	CarbonKg     float64 `json:"carbon_kg"`
	EcoCertified bool    `json:"eco_certified"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// ElasticSearcher is a Searcher backed by an Elasticsearch index.
type ElasticSearcher struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

// ElasticConfig configures NewElasticSearcher.
type ElasticConfig struct {
	URL       string
	IndexName string
	// Transport replaces the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// NewElasticSearcher connects to Elasticsearch and creates the products index
// if it does not exist yet.
func NewElasticSearcher(ctx context.Context, cfg ElasticConfig, logger *slog.Logger) (*ElasticSearcher, error) {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	s := &ElasticSearcher{client: client, indexName: cfg.IndexName, logger: logger}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	return s, nil
}

// Ping checks whether the cluster is reachable.
func (s *ElasticSearcher) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

func (s *ElasticSearcher) ensureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	closeBody(res)
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(productMapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return responseError("create index", res)
	}

	s.logger.Info("elasticsearch index created", slog.String("index", s.indexName))
	return nil
}

// Index adds or replaces the document for product.
func (s *ElasticSearcher) Index(ctx context.Context, product Product) error {
	carbon, _ := product.CarbonKg.Float64()
	data, err := json.Marshal(searchDocument{
		ID:           product.ID,
		Slug:         product.Slug,
		Name:         product.Name,
		Description:  product.Description,
		Category:     product.Category,
		SellerID:     product.SellerID,
		CarbonKg:     carbon,
		EcoCertified: product.EcoCertified,
	})
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal product: %w", err)
	}

	res, err := s.client.Index(
		s.indexName,
		bytes.NewReader(data),
		s.client.Index.WithDocumentID(product.ID),
		s.client.Index.WithRefresh("true"),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return responseError("elasticsearch index", res)
	}
	return nil
}

// Remove deletes the document for id. A missing document is not an error.
func (s *ElasticSearcher) Remove(ctx context.Context, id string) error {
	res, err := s.client.Delete(
		s.indexName,
		id,
		s.client.Delete.WithRefresh("true"),
		s.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer closeBody(res)
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete", res)
	}
	return nil
}

// Search runs a fuzzy multi_match over name, description and category.
func (s *ElasticSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 100
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":         query,
				"fields":        []string{"name^3", "name.autocomplete^2", "description", "category"},
				"type":          "best_fields",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		},
		"size":    limit,
		"_source": false,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return nil, responseError("elasticsearch search", res)
	}

	var resp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}
	ids := make([]string, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}

func closeBody(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
