package order

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/billpay-relay/internal/money"
)

//go:embed templates/receipt.html
var templateFS embed.FS

var receiptTemplate = template.Must(template.ParseFS(templateFS, "templates/receipt.html"))

const (
	CallbackAck  = "OK"
	CallbackFail = "FAIL"
)

// RedirectConfig describes how the receipt page hands the user back to the mobile app.
type RedirectConfig struct {
	Scheme         string
	Host           string
	AndroidPackage string
	AutoDelay      time.Duration
}

type Responder struct {
	cfg RedirectConfig
}

func NewResponder(cfg RedirectConfig) *Responder {
	if cfg.Host == "" {
		cfg.Host = "payment-result"
	}
	return &Responder{cfg: cfg}
}

// Receipt is what the return page shows.
type Receipt struct {
	OrderID     string
	BillCode    string
	StatusID    string
	Status      Status
	StatusClass string
	StatusLabel string
	Amount      string
	Params      [][2]string
	Degraded    bool
	AppLink     template.URL
	DelayMs     int64
}

// BuildReceipt prefers the stored order and falls back to the raw event when the store was unavailable.
func (r *Responder) BuildReceipt(params EventParams, o *Order, userAgent string) Receipt {
	rc := Receipt{
		OrderID:  params.OrderID,
		BillCode: params.BillCode,
		StatusID: params.StatusID,
		Status:   MapStatus(params.StatusID),
		Params:   params.SortedRaw(),
		Degraded: o == nil,
		DelayMs:  r.cfg.AutoDelay.Milliseconds(),
	}

	if cents := money.Normalize(params.Amount); cents != nil {
		rc.Amount = money.FormatCents(*cents)
	} else {
		rc.Amount = params.Amount
	}

	if o != nil {
		rc.OrderID = o.OrderID
		rc.Status = o.Status
		if bc := o.BillCodeValue(); bc != "" {
			rc.BillCode = bc
		}
		if sid := o.StatusIDValue(); sid != "" {
			rc.StatusID = sid
		}
		if o.AmountCents != nil {
			rc.Amount = money.FormatCents(*o.AmountCents)
		}
	}

	rc.StatusClass = rc.Status.Class()
	rc.StatusLabel = rc.Status.Label()
	if link := r.AppLink(rc, IsAndroid(userAgent)); link != "" {
		rc.AppLink = template.URL(link)
	}
	return rc
}

func (r *Responder) RenderReceipt(w io.Writer, rc Receipt) error {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, rc); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (r *Responder) linkQuery(rc Receipt) string {
	q := url.Values{}
	q.Set("order_id", rc.OrderID)
	q.Set("status", string(rc.Status))
	q.Set("status_id", rc.StatusID)
	q.Set("billcode", rc.BillCode)
	return q.Encode()
}

// DeepLink returns <scheme>://<host>?order_id=..&status=..&status_id=..&billcode=.. or "" when no scheme is configured.
func (r *Responder) DeepLink(rc Receipt) string {
	if r.cfg.Scheme == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s?%s", r.cfg.Scheme, r.cfg.Host, r.linkQuery(rc))
}

// IntentLink returns the Android intent:// form of the deep link.
func (r *Responder) IntentLink(rc Receipt) string {
	if r.cfg.Scheme == "" || r.cfg.AndroidPackage == "" {
		return ""
	}
	return fmt.Sprintf("intent://%s?%s#Intent;scheme=%s;package=%s;end",
		r.cfg.Host, r.linkQuery(rc), r.cfg.Scheme, r.cfg.AndroidPackage)
}

// AppLink uses the intent form for Android browsers when a package is configured.
func (r *Responder) AppLink(rc Receipt, android bool) string {
	if android {
		if link := r.IntentLink(rc); link != "" {
			return link
		}
	}
	return r.DeepLink(rc)
}

// IsAndroid reports whether the user agent belongs to an Android browser.
func IsAndroid(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), "android")
}
