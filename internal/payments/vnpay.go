package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	vnpVersion     = "2.1.0"
	vnpCommand     = "pay"
	vnpCurrency    = "VND"
	vnpOrderType   = "other"
	vnpLocale      = "vn"
	vnpDateLayout  = "20060102150405"
	vnpSuccessCode = "00"

	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"

	defaultClientIP = "127.0.0.1"
)

// ProviderVNPay identifies ledger records written for VNPay callbacks.
const ProviderVNPay = "vnpay"

var (
	// ErrInvalidSignature is returned when a callback hash does not match its parameters.
	ErrInvalidSignature = errors.New("payments: invalid signature")
	// ErrMissingParameter is returned when a callback lacks a required parameter.
	ErrMissingParameter = errors.New("payments: missing parameter")
)

// VNPayConfig configures the VNPay signer.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Clock      func() time.Time
	Location   *time.Location
}

// VNPay builds signed redirect URLs and verifies return callbacks.
type VNPay struct {
	tmnCode   string
	secret    []byte
	payURL    string
	returnURL string
	clock     func() time.Time
	location  *time.Location
}

// PaymentRequest describes one redirect to the VNPay checkout page.
type PaymentRequest struct {
	TxnRef   string
	Amount   int64
	ClientIP string
}

// Callback is a verified VNPay return. Amount is converted back to VND.
type Callback struct {
	TxnRef        string
	TransactionNo string
	ResponseCode  string
	BankCode      string
	Amount        int64
	Params        map[string]string
}

// Paid reports whether VNPay accepted the payment.
func (c Callback) Paid() bool {
	return c.ResponseCode == vnpSuccessCode
}

// NewVNPay validates cfg and constructs a signer.
func NewVNPay(cfg VNPayConfig) (*VNPay, error) {
	switch {
	case strings.TrimSpace(cfg.TmnCode) == "":
		return nil, errors.New("payments: vnpay tmn code is required")
	case cfg.HashSecret == "":
		return nil, errors.New("payments: vnpay hash secret is required")
	case strings.TrimSpace(cfg.PayURL) == "":
		return nil, errors.New("payments: vnpay pay url is required")
	case strings.TrimSpace(cfg.ReturnURL) == "":
		return nil, errors.New("payments: vnpay return url is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = vietnamLocation()
	}
	return &VNPay{
		tmnCode:   strings.TrimSpace(cfg.TmnCode),
		secret:    []byte(cfg.HashSecret),
		payURL:    strings.TrimSpace(cfg.PayURL),
		returnURL: strings.TrimSpace(cfg.ReturnURL),
		clock:     clock,
		location:  loc,
	}, nil
}

func vietnamLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*60*60)
}

// BuildURL returns the signed checkout URL for req.
func (v *VNPay) BuildURL(req PaymentRequest) (string, error) {
	ref := strings.TrimSpace(req.TxnRef)
	if ref == "" {
		return "", fmt.Errorf("%w: txn ref", ErrMissingParameter)
	}
	if req.Amount < 0 {
		return "", fmt.Errorf("payments: amount must not be negative")
	}

	params := map[string]string{
		"vnp_Version":    vnpVersion,
		"vnp_Command":    vnpCommand,
		"vnp_TmnCode":    v.tmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CurrCode":   vnpCurrency,
		"vnp_TxnRef":     ref,
		"vnp_OrderInfo":  "Thanh toan don hang " + ref,
		"vnp_OrderType":  vnpOrderType,
		"vnp_Locale":     vnpLocale,
		"vnp_ReturnUrl":  v.returnURL,
		"vnp_IpAddr":     NormalizeClientIP(req.ClientIP),
		"vnp_CreateDate": v.clock().In(v.location).Format(vnpDateLayout),
	}
	data := signData(params)
	return v.payURL + "?" + data + "&" + paramSecureHash + "=" + v.hash(data), nil
}

// Verify checks the callback signature and extracts the transaction fields.
func (v *VNPay) Verify(query url.Values) (Callback, error) {
	params := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	received := params[paramSecureHash]
	if received == "" {
		return Callback{}, ErrInvalidSignature
	}
	expected := v.hash(signData(params))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return Callback{}, ErrInvalidSignature
	}

	delete(params, paramSecureHash)
	delete(params, paramSecureHashType)
	cb := Callback{
		TxnRef:        params["vnp_TxnRef"],
		TransactionNo: params["vnp_TransactionNo"],
		ResponseCode:  params["vnp_ResponseCode"],
		BankCode:      params["vnp_BankCode"],
		Params:        params,
	}
	if cb.TxnRef == "" {
		return Callback{}, fmt.Errorf("%w: vnp_TxnRef", ErrMissingParameter)
	}
	if raw := params["vnp_Amount"]; raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("payments: parse vnp_Amount: %w", err)
		}
		cb.Amount = amount / 100
	}
	return cb, nil
}

// Sign returns the hex HMAC-SHA512 of params as VNPay computes it.
func (v *VNPay) Sign(params map[string]string) string {
	return v.hash(signData(params))
}

func (v *VNPay) hash(data string) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// signData renders the canonical query: hash fields and empty values removed, keys sorted.
func signData(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if key == paramSecureHash || key == paramSecureHashType || value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(encodeComponent(params[key]))
	}
	return b.String()
}

// QueryEscape leaves these unreserved for encodeURIComponent compatibility.
var componentUnescaper = strings.NewReplacer(
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent percent-encodes value like encodeURIComponent with spaces as "+".
func encodeComponent(value string) string {
	return componentUnescaper.Replace(url.QueryEscape(value))
}

// NormalizeClientIP strips the IPv4-mapped prefix and keeps the first forwarded address.
func NormalizeClientIP(raw string) string {
	ip := strings.ReplaceAll(raw, "::ffff:", "")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip == "" {
		return defaultClientIP
	}
	return ip
}
