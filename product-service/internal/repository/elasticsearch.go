package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/fjod/go_shop/pkg/circuitbreaker"
	"github.com/fjod/go_shop/product-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultIndex = "products"
	// MaxResultWindow is the default index.max_result_window; from+size
	// beyond it is rejected by Elasticsearch.
	MaxResultWindow = 10000
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "name":           {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "description":    {"type": "text"},
      "category":       {"type": "keyword"},
      "brand":          {"type": "keyword"},
      "price":          {"type": "scaled_float", "scaling_factor": 100},
      "stock":          {"type": "integer"},
      "status":         {"type": "keyword"},
      "tags":           {"type": "keyword"},
      "imageUrl":       {"type": "keyword", "index": false},
      "sku":            {"type": "keyword"},
      "rating":         {"type": "float"},
      "reviewCount":    {"type": "integer"},
      "specifications": {"type": "text"},
      "createdAt":      {"type": "date"},
      "updatedAt":      {"type": "date"}
    }
  }
}`

// ResponseError is a non-2xx answer other than 404.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("elasticsearch returned %d: %s", e.Status, e.Body)
}

type esResult struct {
	status int
	body   []byte
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Source domain.Product `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type getResponse struct {
	ID     string         `json:"_id"`
	Found  bool           `json:"found"`
	Source domain.Product `json:"_source"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error"`
	} `json:"items"`
}

type ElasticRepository struct {
	transport esapi.Transport
	index     string
	refresh   string
	breaker   *gobreaker.CircuitBreaker[*esResult]
	log       logrus.FieldLogger
}

// NewElasticRepository takes any esapi.Transport, normally an
// *elasticsearch.Client. Writes are refreshed immediately so a read that
// follows a write sees it.
func NewElasticRepository(transport esapi.Transport, index string, log logrus.FieldLogger) *ElasticRepository {
	if index == "" {
		index = DefaultIndex
	}

	settings := circuitbreaker.DefaultSettings("elasticsearch-" + index)
	settings.IsSuccessful = func(err error) bool {
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			return respErr.Status < http.StatusInternalServerError
		}
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &ElasticRepository{
		transport: transport,
		index:     index,
		refresh:   "true",
		breaker:   circuitbreaker.New[*esResult](settings, log),
		log:       log,
	}
}

// do runs the request through the breaker. 404 is a result, not an error.
func (r *ElasticRepository) do(ctx context.Context, req esapi.Request) (*esResult, error) {
	return r.breaker.Execute(func() (*esResult, error) {
		res, err := req.Do(ctx, r.transport)
		if err != nil {
			return nil, err
		}
		var body []byte
		if res.Body != nil {
			defer res.Body.Close()
			if body, err = io.ReadAll(res.Body); err != nil {
				return nil, err
			}
		}
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return nil, &ResponseError{Status: res.StatusCode, Body: string(body)}
		}
		return &esResult{status: res.StatusCode, body: body}, nil
	})
}

// EnsureIndex creates the index with its mapping unless it already exists.
func (r *ElasticRepository) EnsureIndex(ctx context.Context) error {
	res, err := r.do(ctx, esapi.IndicesExistsRequest{Index: []string{r.index}})
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", r.index, err)
	}
	if res.status == http.StatusOK {
		return nil
	}

	_, err = r.do(ctx, esapi.IndicesCreateRequest{
		Index: r.index,
		Body:  strings.NewReader(indexMapping),
	})
	var respErr *ResponseError
	if errors.As(err, &respErr) && strings.Contains(respErr.Body, "resource_already_exists_exception") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", r.index, err)
	}

	r.log.WithField("index", r.index).Info("elasticsearch index created")
	return nil
}

func (r *ElasticRepository) Save(ctx context.Context, p *domain.Product) error {
	_, err := r.do(ctx, esapi.IndexRequest{
		Index:      r.index,
		DocumentID: p.ID,
		Body:       esutil.NewJSONReader(p),
		Refresh:    r.refresh,
	})
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

// SaveAll indexes the products in one bulk request and fails if any item failed.
func (r *ElasticRepository) SaveAll(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range products {
		meta := map[string]any{"index": map[string]any{"_index": r.index, "_id": p.ID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(p); err != nil {
			return err
		}
	}

	res, err := r.do(ctx, esapi.BulkRequest{
		Index:   r.index,
		Body:    &buf,
		Refresh: r.refresh,
	})
	if err != nil {
		return fmt.Errorf("failed to bulk save products: %w", err)
	}

	var resp bulkResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !resp.Errors {
		return nil
	}

	var failed []string
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Status >= http.StatusBadRequest {
				failed = append(failed, result.ID)
			}
		}
	}
	return fmt.Errorf("bulk save failed for products %s", strings.Join(failed, ", "))
}

func (r *ElasticRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	res, err := r.do(ctx, esapi.GetRequest{Index: r.index, DocumentID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	if res.status == http.StatusNotFound {
		return nil, ErrProductNotFound
	}

	var resp getResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode product %s: %w", id, err)
	}
	if !resp.Found {
		return nil, ErrProductNotFound
	}
	p := resp.Source
	p.ID = resp.ID
	return &p, nil
}

func (r *ElasticRepository) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	products, _, err := r.search(ctx, map[string]any{
		"query": term("sku", sku),
		"size":  1,
	})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return products[0], nil
}

func (r *ElasticRepository) FindAll(ctx context.Context) ([]*domain.Product, error) {
	return r.list(ctx, map[string]any{"match_all": map[string]any{}}, nil, MaxResultWindow)
}

func (r *ElasticRepository) FindPage(ctx context.Context, page, size int) (*Page, error) {
	products, total, err := r.search(ctx, map[string]any{
		"query":            map[string]any{"match_all": map[string]any{}},
		"from":             page * size,
		"size":             size,
		"track_total_hits": true,
	})
	if err != nil {
		return nil, err
	}
	return &Page{
		Content:       products,
		TotalElements: total,
		TotalPages:    int(math.Ceil(float64(total) / float64(size))),
		Number:        page,
		Size:          size,
	}, nil
}

// SearchByName matches names containing the given text, ignoring case.
func (r *ElasticRepository) SearchByName(ctx context.Context, name string) ([]*domain.Product, error) {
	query := map[string]any{
		"wildcard": map[string]any{
			"name.keyword": map[string]any{
				"value":            "*" + escapeWildcard(name) + "*",
				"case_insensitive": true,
			},
		},
	}
	return r.list(ctx, query, nil, MaxResultWindow)
}

func (r *ElasticRepository) FindByCategory(ctx context.Context, category string) ([]*domain.Product, error) {
	return r.list(ctx, term("category", category), nil, MaxResultWindow)
}

func (r *ElasticRepository) FindByBrand(ctx context.Context, brand string) ([]*domain.Product, error) {
	return r.list(ctx, term("brand", brand), nil, MaxResultWindow)
}

func (r *ElasticRepository) FindByTag(ctx context.Context, tag string) ([]*domain.Product, error) {
	return r.list(ctx, term("tags", tag), nil, MaxResultWindow)
}

func (r *ElasticRepository) FindByPriceRange(ctx context.Context, minPrice, maxPrice decimal.Decimal) ([]*domain.Product, error) {
	query := map[string]any{
		"range": map[string]any{
			"price": map[string]any{"gte": minPrice.InexactFloat64(), "lte": maxPrice.InexactFloat64()},
		},
	}
	return r.list(ctx, query, nil, MaxResultWindow)
}

func (r *ElasticRepository) FindInStock(ctx context.Context) ([]*domain.Product, error) {
	query := map[string]any{
		"range": map[string]any{"stock": map[string]any{"gt": 0}},
	}
	return r.list(ctx, query, nil, MaxResultWindow)
}

func (r *ElasticRepository) FindTopRated(ctx context.Context, limit int) ([]*domain.Product, error) {
	return r.list(ctx, map[string]any{"match_all": map[string]any{}}, sortDesc("rating"), limit)
}

func (r *ElasticRepository) FindLatest(ctx context.Context, limit int) ([]*domain.Product, error) {
	return r.list(ctx, map[string]any{"match_all": map[string]any{}}, sortDesc("createdAt"), limit)
}

func (r *ElasticRepository) FindRecommended(ctx context.Context, category string, minRating float64, limit int) ([]*domain.Product, error) {
	query := map[string]any{
		"bool": map[string]any{
			"filter": []any{
				term("category", category),
				map[string]any{"range": map[string]any{"rating": map[string]any{"gte": minRating}}},
			},
		},
	}
	return r.list(ctx, query, sortDesc("rating"), limit)
}

func (r *ElasticRepository) Exists(ctx context.Context, id string) (bool, error) {
	res, err := r.do(ctx, esapi.ExistsRequest{Index: r.index, DocumentID: id})
	if err != nil {
		return false, fmt.Errorf("failed to check product %s: %w", id, err)
	}
	return res.status == http.StatusOK, nil
}

func (r *ElasticRepository) Delete(ctx context.Context, id string) error {
	res, err := r.do(ctx, esapi.DeleteRequest{Index: r.index, DocumentID: id, Refresh: r.refresh})
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	if res.status == http.StatusNotFound {
		return ErrProductNotFound
	}
	return nil
}

func (r *ElasticRepository) list(ctx context.Context, query map[string]any, sort []any, size int) ([]*domain.Product, error) {
	body := map[string]any{"query": query, "size": size}
	if sort != nil {
		body["sort"] = sort
	}
	products, _, err := r.search(ctx, body)
	return products, err
}

func (r *ElasticRepository) search(ctx context.Context, body map[string]any) ([]*domain.Product, int64, error) {
	res, err := r.do(ctx, esapi.SearchRequest{
		Index: []string{r.index},
		Body:  esutil.NewJSONReader(body),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	// a missing index has no products yet
	if res.status == http.StatusNotFound {
		return []*domain.Product{}, 0, nil
	}

	var resp searchResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	products := make([]*domain.Product, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		p := hit.Source
		p.ID = hit.ID
		products = append(products, &p)
	}
	return products, resp.Hits.Total.Value, nil
}

func term(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func sortDesc(field string) []any {
	return []any{map[string]any{field: map[string]any{"order": "desc"}}}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
