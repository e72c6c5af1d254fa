package order

import (
	"context"
	"net/http"
	"time"

	errors "github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/internal/transport"
	"github.com/frahmantamala/billpay-relay/pkg/logger"
)

// WebhookHandler serves the gateway-facing return page and callback.
type WebhookHandler struct {
	*transport.BaseHandler
	service   ServiceAPI
	responder *Responder
	timeout   time.Duration
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, service ServiceAPI, responder *Responder, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		service:     service,
		responder:   responder,
		timeout:     timeout,
	}
}

func (h *WebhookHandler) engineContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return errors.WithTimeout(r.Context(), h.timeout)
}

// HandleReturn serves GET and POST /toyyib/return. Query values win over body values.
// Store failures are logged and the page still renders from the request parameters.
func (h *WebhookHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	lg := logger.From(r.Context())

	params, err := ParamsFromRequest(r, false)
	if err != nil {
		lg.Warn("return: unreadable body, using query parameters only", "error", err)
	}

	var resolved *Order
	if params.Keys().Empty() {
		lg.Info("return: no order_id or billcode, rendering receipt without store sync")
	} else {
		ctx, cancel := h.engineContext(r)
		resolved, err = h.service.SyncReturn(ctx, params)
		cancel()
		if err != nil {
			lg.Error("return: sync failed, rendering from request parameters",
				"order_id", params.OrderID,
				"bill_code", params.BillCode,
				"error", err)
			resolved = nil
		}
	}

	receipt := h.responder.BuildReceipt(params, resolved, r.UserAgent())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := h.responder.RenderReceipt(w, receipt); err != nil {
		lg.Error("return: failed to render receipt", "error", err)
	}
}

// HandleCallback serves POST /toyyib/callback. The shared secret has already been checked.
// Anything other than "OK" makes the gateway re-deliver the event.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	lg := logger.From(r.Context())

	params, err := ParamsFromRequest(r, true)
	if err != nil {
		lg.Error("callback: unreadable body", "error", err)
		h.WriteText(w, http.StatusBadRequest, CallbackFail)
		return
	}

	lg.Info("callback received",
		"order_id", params.OrderID,
		"bill_code", params.BillCode,
		"status_id", params.StatusID,
		"transaction_id", params.TransactionID,
		"amount", params.Amount)

	ctx, cancel := h.engineContext(r)
	defer cancel()

	o, err := h.service.HandleCallback(ctx, params)
	if appErr, ok := errors.IsAppError(err); ok && appErr.Type == errors.ErrorTypeValidation {
		lg.Warn("callback rejected: invalid parameters", "error", appErr.GetDetailedMessage())
		h.WriteText(w, http.StatusBadRequest, CallbackFail)
		return
	}
	if err != nil {
		lg.Error("callback: reconciliation failed, asking gateway to retry",
			"order_id", params.OrderID,
			"bill_code", params.BillCode,
			"retryable", errors.IsRetryable(err),
			"error", err)
		h.WriteText(w, http.StatusInternalServerError, CallbackFail)
		return
	}

	lg.Info("callback processed", "order_id", o.OrderID, "status", o.Status)
	h.WriteText(w, http.StatusOK, CallbackAck)
}

// Banner serves GET / as a plain-text liveness banner.
func (h *WebhookHandler) Banner(w http.ResponseWriter, r *http.Request) {
	h.WriteText(w, http.StatusOK, "OK - billpay relay is running")
}
