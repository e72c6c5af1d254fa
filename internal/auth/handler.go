package auth

import (
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/internal/transport"
	"github.com/frahmantamala/billpay-relay/pkg/logger"
)

const (
	CallbackTokenParam  = "token"
	CallbackTokenHeader = "X-Callback-Token"
)

type Handler struct {
	*transport.BaseHandler
	Tokens   TokenGenerator
	Callback CallbackVerifier
}

func NewHandler(tokens TokenGenerator, callback CallbackVerifier) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.LoggerWrapper()),
		Tokens:      tokens,
		Callback:    callback,
	}
}

// AuthMiddleware requires a valid API client token.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleError(w, errors.NewUnauthorizedError("missing authorization token", errors.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Tokens.ValidateToken(token)
		if err != nil {
			if err == ErrTokenExpired {
				h.HandleError(w, errors.ErrTokenExpired)
				return
			}
			h.HandleError(w, errors.ErrInvalidToken)
			return
		}

		ctx := errors.ContextWithClientID(r.Context(), claims.ClientID)
		ctx = logger.With(ctx, "client_id", claims.ClientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallbackMiddleware rejects gateway callbacks whose shared secret does not match.
// It runs before any handler so a rejected request never reaches the store.
func (h *Handler) CallbackMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Callback.Verify(CallbackToken(r)) {
			logger.From(r.Context()).Warn("callback rejected: invalid token", "remote_addr", r.RemoteAddr)
			h.WriteText(w, errors.ErrInvalidCallbackToken.StatusCode, string(errors.ErrInvalidCallbackToken.Code))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CallbackToken reads the token from the path, the bearer header or X-Callback-Token, in that order.
func CallbackToken(r *http.Request) string {
	if token := chi.URLParam(r, CallbackTokenParam); token != "" {
		return token
	}
	base := transport.BaseHandler{}
	if token := base.ExtractTokenFromHeader(r); token != "" {
		return token
	}
	return r.Header.Get(CallbackTokenHeader)
}
