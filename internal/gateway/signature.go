package gateway

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const macField = "CheckMacValue"

// CheckMac computes the ECPay CheckMacValue over a flat field set: exclude
// the mac field, sort keys case-insensitively, join as key=value pairs,
// wrap with HashKey/HashIV, percent-encode with the gateway's table,
// lower-case, SHA-256, upper-case hex.
func CheckMac(values url.Values, creds Credentials) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == macField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var sb strings.Builder
	sb.WriteString("HashKey=")
	sb.WriteString(creds.HashKey)
	for _, k := range keys {
		sb.WriteByte('&')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(values.Get(k))
	}
	sb.WriteString("&HashIV=")
	sb.WriteString(creds.HashIV)

	encoded := strings.ToLower(ecpayEscape(sb.String()))
	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}

// Sign sets the CheckMacValue field on an outbound parameter set.
func Sign(values url.Values, creds Credentials) {
	values.Set(macField, CheckMac(values, creds))
}

// VerifyMac reports whether the supplied CheckMacValue matches the computed
// digest. The compare is exact and case-sensitive against the upper-cased
// digest. When the environment allows it, the literal "test" passes; this
// flag is never set on production credentials.
func VerifyMac(values url.Values, env Environment) bool {
	supplied := values.Get(macField)
	if supplied == "" {
		return false
	}
	if env.AllowTestMac && supplied == "test" {
		return true
	}
	return supplied == CheckMac(values, env.Creds)
}

// ecpayEscape percent-encodes per the gateway's .NET-style table: space
// becomes '+', and - _ . ! * ( ) ' stay literal. Everything else outside
// the alphanumerics is percent-encoded.
func ecpayEscape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '!' || c == '*' ||
			c == '(' || c == ')' || c == '\'':
			sb.WriteByte(c)
		case c == ' ':
			sb.WriteByte('+')
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}
