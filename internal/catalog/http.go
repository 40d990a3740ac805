package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"depotpos/backend/internal/domain"
)

// HTTPClient implements Client over the distributor's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, method string, path string, body any, dest any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: distributor returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%w: %s", ErrRejected, apiErr.Error)
		}
		return fmt.Errorf("%w: distributor returned %d", ErrRejected, resp.StatusCode)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *HTTPClient) ListProducts(ctx context.Context, query domain.ProductQuery) (*domain.ProductPage, error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(query.PerPage))
	}
	if query.Search != "" {
		params.Set("search", query.Search)
	}
	if query.CategoryID != "" {
		params.Set("category_id", query.CategoryID)
	}

	path := "/api/v1/products"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page domain.ProductPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var resp struct {
		Categories []domain.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/categories", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(productID), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *HTTPClient) QueryStock(ctx context.Context, productIDs []string) ([]domain.ProductStock, error) {
	req := struct {
		ProductIDs []string `json:"product_ids"`
	}{ProductIDs: productIDs}

	var resp struct {
		Stocks []domain.ProductStock `json:"stocks"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/stock/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Stocks, nil
}

func (c *HTTPClient) CreateSale(ctx context.Context, submission domain.SaleSubmission) (*domain.SaleReceipt, error) {
	var receipt domain.SaleReceipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/sales", submission, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *HTTPClient) CompleteSale(ctx context.Context, saleID string) (*domain.SaleCompletion, error) {
	var completion domain.SaleCompletion
	if err := c.do(ctx, http.MethodPost, "/api/v1/sales/"+url.PathEscape(saleID)+"/complete", nil, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}
