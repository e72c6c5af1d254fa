package order

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/frahmantamala/billpay-relay/internal/core/common/validation"
)

const maxEventBodyBytes = 64 << 10

// Source names the channel an event arrived through.
type Source string

const (
	SourceReturn   Source = "return"
	SourceCallback Source = "callback"
	SourceVerify   Source = "verify"
	SourceReplay   Source = "replay"
)

// EventParams is the normalized payload of a status-bearing event. Every field is optional.
type EventParams struct {
	StatusID      string
	BillCode      string
	OrderID       string
	TransactionID string
	Amount        string
	// Raw holds every parameter received, retained as the audit payload.
	Raw map[string]string
}

// aliases lists accepted parameter names per field, in lookup order.
var aliases = struct {
	statusID, billCode, orderID, transactionID, amount []string
}{
	statusID:      []string{"status_id", "status"},
	billCode:      []string{"billcode", "bill_code", "billCode"},
	orderID:       []string{"order_id", "orderId"},
	transactionID: []string{"transaction_id", "refno"},
	amount:        []string{"amount"},
}

// Validate rejects values wider than their store columns. Such an event fails the same way on every delivery.
func (p EventParams) Validate() error {
	validator := validation.NewValidator()
	validator.Field("order_id", p.OrderID).MaxLength(validation.MaxOrderIDLength)
	validator.Field("billcode", p.BillCode).MaxLength(validation.MaxOrderIDLength)
	validator.Field("status_id", p.StatusID).MaxLength(validation.MaxStatusIDLength)
	validator.Field("transaction_id", p.TransactionID).MaxLength(validation.MaxTransactionIDLength)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (p EventParams) Keys() Keys {
	return Keys{OrderID: p.OrderID, BillCode: p.BillCode}
}

// SortedRaw returns the raw parameters ordered by name.
func (p EventParams) SortedRaw() [][2]string {
	names := make([]string, 0, len(p.Raw))
	for k := range p.Raw {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([][2]string, 0, len(names))
	for _, k := range names {
		out = append(out, [2]string{k, p.Raw[k]})
	}
	return out
}

// ParamsFromValues builds EventParams from a flat parameter set.
func ParamsFromValues(values map[string]string) EventParams {
	raw := make(map[string]string, len(values))
	for k, v := range values {
		raw[k] = v
	}
	return EventParams{
		StatusID:      pick(raw, aliases.statusID),
		BillCode:      pick(raw, aliases.billCode),
		OrderID:       pick(raw, aliases.orderID),
		TransactionID: pick(raw, aliases.transactionID),
		Amount:        pick(raw, aliases.amount),
		Raw:           raw,
	}
}

// ParamsFromRequest merges query string and body parameters. When preferBody is
// set a body value wins over a query value of the same name, otherwise the query wins.
func ParamsFromRequest(r *http.Request, preferBody bool) (EventParams, error) {
	query := flatten(r.URL.Query())

	body, err := bodyParams(r)
	if err != nil {
		return ParamsFromValues(query), err
	}

	primary, secondary := query, body
	if preferBody {
		primary, secondary = body, query
	}

	merged := make(map[string]string, len(primary)+len(secondary))
	for k, v := range secondary {
		merged[k] = v
	}
	for k, v := range primary {
		if v != "" || merged[k] == "" {
			merged[k] = v
		}
	}
	return ParamsFromValues(merged), nil
}

func bodyParams(r *http.Request) (map[string]string, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return map[string]string{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	limited := io.LimitReader(r.Body, maxEventBodyBytes)

	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(limited)
		dec.UseNumber()
		var payload map[string]interface{}
		if err := dec.Decode(&payload); err != nil {
			if err == io.EOF {
				return map[string]string{}, nil
			}
			return map[string]string{}, fmt.Errorf("decode json body: %w", err)
		}
		out := make(map[string]string, len(payload))
		for k, v := range payload {
			if v == nil {
				continue
			}
			switch t := v.(type) {
			case string:
				out[k] = t
			case json.Number:
				out[k] = t.String()
			default:
				out[k] = fmt.Sprint(t)
			}
		}
		return out, nil
	case "application/x-www-form-urlencoded", "":
		b, err := io.ReadAll(limited)
		if err != nil {
			return map[string]string{}, fmt.Errorf("read form body: %w", err)
		}
		values, err := url.ParseQuery(string(b))
		if err != nil {
			return map[string]string{}, fmt.Errorf("parse form body: %w", err)
		}
		return flatten(values), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxEventBodyBytes); err != nil {
			return map[string]string{}, fmt.Errorf("parse multipart body: %w", err)
		}
		return flatten(url.Values(r.MultipartForm.Value)), nil
	}
	return map[string]string{}, nil
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = strings.TrimSpace(v[0])
		}
	}
	return out
}

func pick(values map[string]string, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(values[name]); v != "" {
			return v
		}
	}
	return ""
}
