package domain

import (
	"strings"
	"time"
)

// PushRequest asks the gateway to prompt the payer's phone for Amount.
type PushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	Description      string
}

type PushReceipt struct {
	CheckoutRef     string
	MerchantRef     string
	CustomerMessage string
}

// CallbackResult is the gateway's asynchronous verdict on a push request.
// ResultCode 0 means the payer completed the payment.
type CallbackResult struct {
	CheckoutRef string
	MerchantRef string
	ResultCode  int
	ResultDesc  string
	Metadata    map[string]string
}

const (
	MetaReceiptNumber   = "MpesaReceiptNumber"
	MetaTransactionDate = "TransactionDate"
	MetaAmount          = "Amount"
	MetaPhoneNumber     = "PhoneNumber"
)

var gatewayZone = time.FixedZone("EAT", 3*60*60)

func (c CallbackResult) Succeeded() bool {
	return c.ResultCode == 0
}

func (c CallbackResult) Receipt() string {
	return strings.TrimSpace(c.Metadata[MetaReceiptNumber])
}

// TransactionTime parses the yyyyMMddHHmmss gateway timestamp, falling back
// to fallback when it is missing or malformed.
func (c CallbackResult) TransactionTime(fallback time.Time) time.Time {
	raw := strings.TrimSpace(c.Metadata[MetaTransactionDate])
	if raw == "" {
		return fallback
	}
	t, err := time.ParseInLocation("20060102150405", raw, gatewayZone)
	if err != nil {
		return fallback
	}
	return t
}
