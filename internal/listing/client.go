// Package listing предоставляет клиент для сервиса объявлений.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// StatusAuction обозначает объявление, выставленное на аукцион.
const StatusAuction = "auction"

// Client инкапсулирует HTTP-взаимодействие с сервисом объявлений.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// Item описывает ответ сервиса объявлений по одному лоту.
type Item struct {
	ID       string `json:"id"`
	SellerID string `json:"sellerId"`
	Status   string `json:"status"`
}

// NewClient создаёт клиент для обращения к сервису объявлений по указанному адресу.
// Ответы 429 и 5xx повторяются с учётом заголовка Retry-After.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{logger.Sugar()}

	return &Client{
		baseURL:    base,
		httpClient: rc,
	}
}

// GetItem запрашивает лот. Для несуществующего лота возвращает nil без ошибки.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("listing client not configured")
	}

	u := fmt.Sprintf("%s/api/items/%s", c.baseURL, url.PathEscape(itemID))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &item, nil
}

// ItemOwnedBy проверяет, что лот принадлежит продавцу и выставлен на аукцион.
func (c *Client) ItemOwnedBy(ctx context.Context, itemID, sellerID string) (bool, error) {
	item, err := c.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	return item.SellerID == sellerID && item.Status == StatusAuction, nil
}

type leveledLogger struct {
	l *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.Warnw(msg, kv...) }
