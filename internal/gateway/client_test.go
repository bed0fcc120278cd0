package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv() Environment {
	return Environment{Name: "sandbox", Creds: testCreds}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "http://localhost/callbacks/payment", "http://localhost/callbacks/deposit")
	return srv, client
}

func TestCreatePaymentForm(t *testing.T) {
	client := NewClient("https://payment-stage.ecpay.com.tw",
		"http://localhost/callbacks/payment", "http://localhost/callbacks/deposit")

	form := client.CreatePayment(testEnv(), CheckoutRequest{
		TradeNo:     "RNT240428123456ABCDE",
		Amount:      12000,
		Description: "phone rental payment",
		ItemName:    "Phone rental",
	})

	assert.Equal(t, "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5", form.URL)
	assert.Equal(t, "2000132", form.Fields["MerchantID"])
	assert.Equal(t, "12000", form.Fields["TotalAmount"])
	assert.Equal(t, "http://localhost/callbacks/payment", form.Fields["ReturnURL"])
	assert.NotContains(t, form.Fields, "HoldTradeAMT")

	// The emitted signature must verify against the same credentials.
	values := url.Values{}
	for k, v := range form.Fields {
		values.Set(k, v)
	}
	assert.True(t, VerifyMac(values, testEnv()))
}

func TestCreatePreAuthFormSetsHold(t *testing.T) {
	client := NewClient("https://payment-stage.ecpay.com.tw",
		"http://localhost/callbacks/payment", "http://localhost/callbacks/deposit")

	form := client.CreatePreAuth(testEnv(), CheckoutRequest{
		TradeNo:     "DEP56ABCDE0428123456",
		Amount:      30000,
		Description: "phone rental security deposit",
		ItemName:    "Security deposit",
	})

	assert.Equal(t, "1", form.Fields["HoldTradeAMT"])
	assert.Equal(t, "http://localhost/callbacks/deposit", form.Fields["ReturnURL"])
	assert.LessOrEqual(t, len(form.Fields["MerchantTradeNo"]), 20)
}

func TestCaptureSuccess(t *testing.T) {
	var got url.Values
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Write([]byte("MerchantID=2000132&MerchantTradeNo=DEP1&TradeNo=2404281234567890&RtnCode=1&RtnMsg=OK"))
	})

	res, err := client.Capture(context.Background(), testEnv(), "DEP1", "2404281234567890", 10000)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "1", res.Code)
	assert.Equal(t, "2404281234567890", res.GatewayTradeNo)

	assert.Equal(t, "C", got.Get("Action"))
	assert.Equal(t, "10000", got.Get("TotalAmount"))
	assert.NotEmpty(t, got.Get("CheckMacValue"))
}

func TestVoidReleaseUsesReleaseAction(t *testing.T) {
	var got url.Values
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Write([]byte("RtnCode=1&RtnMsg=OK&TradeNo=2404281234567890"))
	})

	res, err := client.VoidRelease(context.Background(), testEnv(), "DEP1", "2404281234567890", 30000)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "N", got.Get("Action"))
}

func TestRefundUsesRefundAction(t *testing.T) {
	var got url.Values
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Write([]byte("RtnCode=1&RtnMsg=OK&TradeNo=2404281234567890"))
	})

	_, err := client.Refund(context.Background(), testEnv(), "DEP1", "2404281234567890", 5000)
	require.NoError(t, err)
	assert.Equal(t, "R", got.Get("Action"))
}

func TestCaptureDeclinedKeepsGatewayMessage(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RtnCode=10200047&RtnMsg=Amount+exceeds+authorized+total"))
	})

	res, err := client.Capture(context.Background(), testEnv(), "DEP1", "2404281234567890", 10000)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "10200047", res.Code)
	assert.Equal(t, "Amount exceeds authorized total", res.Message)
}

func TestDoActionTransportErrorIsUnknownOutcome(t *testing.T) {
	srv, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	res, err := client.Capture(context.Background(), testEnv(), "DEP1", "2404281234567890", 10000)
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestDoActionNon200IsError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Capture(context.Background(), testEnv(), "DEP1", "2404281234567890", 10000)
	assert.Error(t, err)
}

func TestDoActionMalformedResponseIsError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	})

	_, err := client.Capture(context.Background(), testEnv(), "DEP1", "2404281234567890", 10000)
	assert.Error(t, err)
}

func TestQueryTrade(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "DEP1", r.PostForm.Get("MerchantTradeNo"))
		assert.NotEmpty(t, r.PostForm.Get("TimeStamp"))
		w.Write([]byte("TradeStatus=1&TradeNo=2404281234567890&TradeAmt=30000&ClosedAmt=10000"))
	})

	info, err := client.QueryTrade(context.Background(), testEnv(), "DEP1")
	require.NoError(t, err)

	assert.Equal(t, TradeStatusHeld, info.TradeStatus)
	assert.Equal(t, "2404281234567890", info.TradeNo)
	assert.Equal(t, int64(30000), info.TradeAmt)
	assert.Equal(t, int64(10000), info.ClosedAmt)
}

func TestQueryTradeTimeout(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("TradeStatus=1"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.QueryTrade(ctx, testEnv(), "DEP1")
	assert.Error(t, err)
}
