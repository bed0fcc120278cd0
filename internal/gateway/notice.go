package gateway

import (
	"fmt"
	"net/url"
)

// RtnCodeSuccess is the gateway's success return code.
const RtnCodeSuccess = "1"

// Notice is a parsed inbound webhook payload.
type Notice struct {
	MerchantID      string
	MerchantTradeNo string
	RtnCode         string
	RtnMsg          string
	TradeNo         string

	// Raw keeps the full form for verification and forensic logging.
	Raw url.Values
}

// Success reports whether the gateway considers the trade successful.
func (n *Notice) Success() bool {
	return n.RtnCode == RtnCodeSuccess
}

var requiredNoticeFields = []string{
	"MerchantID", "MerchantTradeNo", "RtnCode", "RtnMsg", "TradeNo", "CheckMacValue",
}

// ParseNotice validates the required webhook fields and returns the parsed
// notice. It performs no signature check; the caller resolves the
// environment from MerchantID first and verifies separately.
func ParseNotice(form url.Values) (*Notice, error) {
	for _, f := range requiredNoticeFields {
		if form.Get(f) == "" {
			return nil, fmt.Errorf("missing field %s", f)
		}
	}
	return &Notice{
		MerchantID:      form.Get("MerchantID"),
		MerchantTradeNo: form.Get("MerchantTradeNo"),
		RtnCode:         form.Get("RtnCode"),
		RtnMsg:          form.Get("RtnMsg"),
		TradeNo:         form.Get("TradeNo"),
		Raw:             form,
	}, nil
}
