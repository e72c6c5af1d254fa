package order

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/internal/transport"
	"github.com/frahmantamala/billpay-relay/pkg/logger"
)

const maxRegisterBodyBytes = 16 << 10

// Handler serves the JSON API used by the mobile backend.
type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.LoggerWrapper()),
		Service:     svc,
	}
}

// PreRegister handles POST /api/v1/orders
func (h *Handler) PreRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRegisterBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	o, err := h.Service.PreRegister(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	logger.From(r.Context()).Info("PreRegister: order registered",
		"order_id", o.OrderID,
		"client_id", errors.ClientIDFromContext(r.Context()))

	h.WriteJSON(w, http.StatusOK, RegisterResponse{OK: true, Order: NewStatusView(o)})
}

// GetStatus handles GET /api/v1/orders/{order_id}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "order_id"))
	if orderID == "" {
		h.HandleError(w, errors.NewValidationFieldError("order_id", "order_id is required", errors.ErrCodeInvalidOrderID))
		return
	}

	view, err := h.Service.GetStatus(r.Context(), orderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}
