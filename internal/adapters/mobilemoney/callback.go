package mobilemoney

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []struct {
			Name  string      `json:"Name"`
			Value interface{} `json:"Value"`
		} `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

// ParseCallback decodes a gateway callback body. Numeric metadata values are
// kept in their literal form so receipts and timestamps are not rounded.
func ParseCallback(body []byte) (domain.CallbackResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env CallbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return domain.CallbackResult{}, errors.Wrap(domain.ErrInvalidInput, "malformed callback body")
	}
	cb := env.Body.StkCallback
	if strings.TrimSpace(cb.CheckoutRequestID) == "" || cb.ResultCode == nil {
		return domain.CallbackResult{}, errors.Wrap(domain.ErrInvalidInput, "callback without checkout id or result code")
	}

	res := domain.CallbackResult{
		CheckoutRef: cb.CheckoutRequestID,
		MerchantRef: cb.MerchantRequestID,
		ResultCode:  *cb.ResultCode,
		ResultDesc:  cb.ResultDesc,
		Metadata:    map[string]string{},
	}
	if cb.CallbackMetadata != nil {
		for _, item := range cb.CallbackMetadata.Item {
			if item.Value == nil {
				continue
			}
			res.Metadata[item.Name] = fmt.Sprint(item.Value)
		}
	}
	return res, nil
}
