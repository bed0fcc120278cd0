package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rental-payments/internal/util"

	"go.uber.org/zap"
)

const (
	checkoutPath = "/Cashier/AioCheckOut/V5"
	doActionPath = "/CreditDetail/DoAction"
	queryPath    = "/Cashier/QueryTradeInfo/V5"

	// DoAction discriminators: close (capture) a held amount, refund a
	// captured amount, or release an uncaptured hold.
	actionCapture = "C"
	actionRefund  = "R"
	actionRelease = "N"

	merchantTradeDateFormat = "2006/01/02 15:04:05"
)

// Client builds signed outbound requests to the ECPay gateway and parses
// its responses into normalized results. It performs no retries; retry
// policy belongs to the caller.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	paymentReturnURL string
	depositReturnURL string
	logger           *zap.Logger
}

// NewClient creates a gateway client. Return URLs are where the gateway
// delivers its asynchronous callbacks.
func NewClient(baseURL, paymentReturnURL, depositReturnURL string) *Client {
	return &Client{
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		baseURL:          strings.TrimRight(baseURL, "/"),
		paymentReturnURL: paymentReturnURL,
		depositReturnURL: depositReturnURL,
		logger:           util.GetLogger(),
	}
}

// CheckoutRequest describes a payment or pre-authorization to start.
type CheckoutRequest struct {
	TradeNo     string
	Amount      int64
	Description string
	ItemName    string
}

// CheckoutForm is the browser-redirect form payload the end user's browser
// POSTs to the gateway. Building it causes no gateway call; the outcome
// arrives later on the return URL.
type CheckoutForm struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// ActionResult is the normalized outcome of a synchronous gateway call.
// A nil error with Success=false is a gateway-level decline; the Message
// carries the gateway's reason verbatim for operator visibility.
type ActionResult struct {
	Success        bool
	Code           string
	Message        string
	GatewayTradeNo string
}

// TradeInfo is the gateway's answer to a status query, used for
// reconciliation after an unknown-outcome call. ClosedAmt is the total the
// gateway has closed (captured) against the authorization so far.
type TradeInfo struct {
	TradeNo     string
	TradeStatus string
	TradeAmt    int64
	ClosedAmt   int64
	Raw         url.Values
}

// TradeStatusHeld is the query status for a successful (paid or held) trade.
const TradeStatusHeld = "1"

// CreatePayment builds the signed checkout form for a rental payment.
func (c *Client) CreatePayment(env Environment, req CheckoutRequest) *CheckoutForm {
	return c.checkoutForm(env, req, false)
}

// CreatePreAuth builds the signed checkout form for a security-deposit
// pre-authorization. HoldTradeAMT tells the gateway to authorize without
// capturing.
func (c *Client) CreatePreAuth(env Environment, req CheckoutRequest) *CheckoutForm {
	return c.checkoutForm(env, req, true)
}

func (c *Client) checkoutForm(env Environment, req CheckoutRequest, hold bool) *CheckoutForm {
	values := url.Values{}
	values.Set("MerchantID", env.Creds.MerchantID)
	values.Set("MerchantTradeNo", req.TradeNo)
	values.Set("MerchantTradeDate", time.Now().Format(merchantTradeDateFormat))
	values.Set("PaymentType", "aio")
	values.Set("TotalAmount", strconv.FormatInt(req.Amount, 10))
	values.Set("TradeDesc", req.Description)
	values.Set("ItemName", req.ItemName)
	values.Set("ChoosePayment", "Credit")
	values.Set("EncryptType", "1")
	if hold {
		values.Set("HoldTradeAMT", "1")
		values.Set("ReturnURL", c.depositReturnURL)
	} else {
		values.Set("ReturnURL", c.paymentReturnURL)
	}
	Sign(values, env.Creds)

	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return &CheckoutForm{URL: c.baseURL + checkoutPath, Fields: fields}
}

// Capture closes part or all of a held amount.
func (c *Client) Capture(ctx context.Context, env Environment, tradeNo, gatewayTradeNo string, amount int64) (*ActionResult, error) {
	return c.doAction(ctx, env, actionCapture, tradeNo, gatewayTradeNo, amount)
}

// VoidRelease abandons an uncaptured hold. Only valid while nothing has
// been captured; refunding captured money is a separate action.
func (c *Client) VoidRelease(ctx context.Context, env Environment, tradeNo, gatewayTradeNo string, amount int64) (*ActionResult, error) {
	return c.doAction(ctx, env, actionRelease, tradeNo, gatewayTradeNo, amount)
}

// Refund returns a previously captured amount to the cardholder.
func (c *Client) Refund(ctx context.Context, env Environment, tradeNo, gatewayTradeNo string, amount int64) (*ActionResult, error) {
	return c.doAction(ctx, env, actionRefund, tradeNo, gatewayTradeNo, amount)
}

// doAction issues a signed synchronous DoAction call. A returned error
// means the outcome is unknown (transport failure, malformed response);
// the caller must not map it to success or failure.
func (c *Client) doAction(ctx context.Context, env Environment, action, tradeNo, gatewayTradeNo string, amount int64) (*ActionResult, error) {
	values := url.Values{}
	values.Set("MerchantID", env.Creds.MerchantID)
	values.Set("MerchantTradeNo", tradeNo)
	values.Set("TradeNo", gatewayTradeNo)
	values.Set("Action", action)
	values.Set("TotalAmount", strconv.FormatInt(amount, 10))
	Sign(values, env.Creds)

	resp, err := c.postForm(ctx, c.baseURL+doActionPath, values, "do_action")
	if err != nil {
		return nil, err
	}

	code := resp.Get("RtnCode")
	msg := resp.Get("RtnMsg")
	if code == "" {
		return nil, fmt.Errorf("malformed DoAction response: %s", resp.Encode())
	}

	result := &ActionResult{
		Success:        code == RtnCodeSuccess,
		Code:           code,
		Message:        msg,
		GatewayTradeNo: resp.Get("TradeNo"),
	}
	if !result.Success {
		c.logger.Warn("Gateway declined action",
			zap.String("action", action),
			zap.String("trade_no", tradeNo),
			zap.String("rtn_code", code),
			zap.String("rtn_msg", msg))
	}
	return result, nil
}

// QueryTrade asks the gateway for the authoritative state of a trade.
func (c *Client) QueryTrade(ctx context.Context, env Environment, tradeNo string) (*TradeInfo, error) {
	values := url.Values{}
	values.Set("MerchantID", env.Creds.MerchantID)
	values.Set("MerchantTradeNo", tradeNo)
	values.Set("TimeStamp", strconv.FormatInt(time.Now().Unix(), 10))
	Sign(values, env.Creds)

	resp, err := c.postForm(ctx, c.baseURL+queryPath, values, "query_trade")
	if err != nil {
		return nil, err
	}
	if resp.Get("TradeStatus") == "" {
		return nil, fmt.Errorf("malformed QueryTradeInfo response: %s", resp.Encode())
	}

	amt, _ := strconv.ParseInt(resp.Get("TradeAmt"), 10, 64)
	closed, _ := strconv.ParseInt(resp.Get("ClosedAmt"), 10, 64)
	return &TradeInfo{
		TradeNo:     resp.Get("TradeNo"),
		TradeStatus: resp.Get("TradeStatus"),
		TradeAmt:    amt,
		ClosedAmt:   closed,
		Raw:         resp,
	}, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, values url.Values, op string) (url.Values, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	parsed, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return parsed, nil
}
