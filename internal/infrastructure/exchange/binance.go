package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/tg_signal_trader/internal/domain"
)

const (
	BinanceBaseURL    = "https://api.binance.com"
	BinanceTestnetURL = "https://testnet.binance.vision"
)

// BinanceAdapter talks to the Binance spot REST API. All order endpoints are
// signed; market data endpoints go out unsigned.
type BinanceAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
}

func NewBinanceAdapter(apiKey, apiSecret, baseURL string) *BinanceAdapter {
	if baseURL == "" {
		baseURL = BinanceBaseURL
	}
	return &BinanceAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BinanceAdapter) sign(query string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// apiError is Binance's uniform error envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (b *BinanceAdapter) sendSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + b.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &domain.ConnectivityError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Msg != "" {
			return nil, fmt.Errorf("binance error %d: %s", e.Code, e.Msg)
		}
		return nil, fmt.Errorf("binance http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (b *BinanceAdapter) sendPublic(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &domain.ConnectivityError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("binance http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (b *BinanceAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := b.sendPublic(ctx, "/api/v3/ticker/price?symbol="+url.QueryEscape(symbol))
	if err != nil {
		return 0, err
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.Price, 64)
}

func (b *BinanceAdapter) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	body, err := b.sendSigned(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	for _, bal := range result.Balances {
		if strings.EqualFold(bal.Asset, asset) {
			return strconv.ParseFloat(bal.Free, 64)
		}
	}
	return 0, nil
}

func (b *BinanceAdapter) GetInstruments(ctx context.Context) ([]domain.Instrument, error) {
	body, err := b.sendPublic(ctx, "/api/v3/exchangeInfo")
	if err != nil {
		return nil, err
	}

	var result struct {
		Symbols []struct {
			Symbol             string `json:"symbol"`
			BaseAsset          string `json:"baseAsset"`
			QuoteAsset         string `json:"quoteAsset"`
			Status             string `json:"status"`
			IsSpotTradingAllow bool   `json:"isSpotTradingAllowed"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	instruments := make([]domain.Instrument, 0, len(result.Symbols))
	for _, s := range result.Symbols {
		instruments = append(instruments, domain.Instrument{
			Symbol:    s.Symbol,
			BaseCoin:  s.BaseAsset,
			QuoteCoin: s.QuoteAsset,
			Status:    s.Status,
			Leveraged: leveragedToken(s.BaseAsset) || !s.IsSpotTradingAllow,
		})
	}
	return instruments, nil
}

// leveragedToken spots Binance leveraged token names (BTCUP, ETHDOWN, ...)
// so a "spot only" signal never buys one by accident.
func leveragedToken(base string) bool {
	b := strings.ToUpper(base)
	return strings.HasSuffix(b, "UP") && len(b) > 2 ||
		strings.HasSuffix(b, "DOWN") && len(b) > 4 ||
		strings.HasSuffix(b, "BULL") && len(b) > 4 ||
		strings.HasSuffix(b, "BEAR") && len(b) > 4
}

// orderResponse is the FULL response of POST /api/v3/order.
type orderResponse struct {
	OrderID             int64  `json:"orderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

func (r *orderResponse) fill() (*domain.Fill, error) {
	qty, err := strconv.ParseFloat(r.ExecutedQty, 64)
	if err != nil || qty <= 0 {
		return nil, fmt.Errorf("order %d: no executed quantity", r.OrderID)
	}
	quote, err := strconv.ParseFloat(r.CummulativeQuoteQty, 64)
	if err != nil {
		return nil, err
	}
	return &domain.Fill{
		OrderID:  strconv.FormatInt(r.OrderID, 10),
		Quantity: qty,
		AvgPrice: quote / qty,
	}, nil
}

func (b *BinanceAdapter) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", strconv.FormatFloat(quoteAmount, 'f', 8, 64))
	params.Set("newOrderRespType", "FULL")

	body, err := b.sendSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var result orderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return result.fill()
}

func (b *BinanceAdapter) MarketSell(ctx context.Context, symbol string, quantity float64) (*domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', 8, 64))
	params.Set("newOrderRespType", "FULL")

	body, err := b.sendSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var result orderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return result.fill()
}

func (b *BinanceAdapter) PlaceLimitBuy(ctx context.Context, symbol string, quantity, price float64) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', 8, 64))
	params.Set("price", strconv.FormatFloat(price, 'f', 8, 64))

	body, err := b.sendSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	return strconv.FormatInt(result.OrderID, 10), nil
}

func (b *BinanceAdapter) GetOrder(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := b.sendSigned(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	qty, _ := strconv.ParseFloat(result.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(result.CummulativeQuoteQty, 64)
	avg := 0.0
	if qty > 0 {
		avg = quote / qty
	}
	return &domain.OrderStatus{
		OrderID:   strconv.FormatInt(result.OrderID, 10),
		Status:    result.Status,
		FilledQty: qty,
		AvgPrice:  avg,
	}, nil
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := b.sendSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}
