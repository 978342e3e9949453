package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/content-payments/internal"
	userDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/user"
	"github.com/frahmantamala/content-payments/internal/transport"
	"github.com/frahmantamala/content-payments/pkg/logger"
)

// UserReader confirms that the subject of a token still exists.
type UserReader interface {
	GetByUserID(ctx context.Context, userID int64) (*userDatamodel.User, error)
}

type Handler struct {
	*transport.BaseHandler
	Tokens TokenGenerator
	Users  UserReader
}

func NewHandler(tokens TokenGenerator, users UserReader, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Tokens:      tokens,
		Users:       users,
	}
}

// AuthMiddleware resolves the bearer token to a user id and stores it in the
// request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleError(w, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeAuthRequired))
			return
		}

		claims, err := h.Tokens.ValidateToken(token)
		if err != nil {
			if appErr, ok := internal.IsAppError(err); ok {
				h.HandleError(w, appErr)
				return
			}
			h.HandleError(w, internal.ErrInvalidToken)
			return
		}

		userID, err := claims.UserIDInt()
		if err != nil {
			h.Logger.Warn("auth middleware: bad subject in token", "error", err)
			h.HandleError(w, internal.ErrInvalidToken)
			return
		}

		if h.Users != nil {
			if _, err := h.Users.GetByUserID(r.Context(), userID); err != nil {
				h.Logger.Warn("auth middleware: token subject not found", "user_id", userID, "error", err)
				h.HandleError(w, internal.NewUnauthorizedError("user not found", internal.ErrCodeUserNotFound))
				return
			}
		}

		ctx := internal.ContextWithUserID(r.Context(), userID)
		ctx = logger.With(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
