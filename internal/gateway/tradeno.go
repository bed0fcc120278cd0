package gateway

import (
	"strings"
	"time"
)

// The gateway caps MerchantTradeNo at 20 alphanumeric characters.
const maxTradeNoLen = 20

// preAuthMarker prefixes deposit pre-authorization trade numbers so the
// webhook endpoints can tell the two transaction kinds apart.
const preAuthMarker = "DEP"

// PreAuthTradeNo derives a deposit trade number from the order id: the
// marker, the tail of the sanitized order id, and a time-based suffix so a
// retried pre-auth gets a fresh identifier.
func PreAuthTradeNo(orderID string, now time.Time) string {
	suffix := now.Format("0102150405")
	budget := maxTradeNoLen - len(preAuthMarker) - len(suffix)

	id := sanitizeAlnum(orderID)
	if len(id) > budget {
		id = id[len(id)-budget:]
	}
	return preAuthMarker + id + suffix
}

// IsPreAuthTradeNo reports whether a trade number belongs to a deposit
// pre-authorization rather than a rental payment.
func IsPreAuthTradeNo(tradeNo string) bool {
	return strings.HasPrefix(tradeNo, preAuthMarker)
}

func sanitizeAlnum(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
