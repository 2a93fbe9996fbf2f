package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"shorturl.local/gee"
	"shorturl.local/internal/platform/auth"
)

type LoginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

// NewLoginHandler 校验 ADMIN_USERS 里的账号，成功后签发 JWT。
func NewLoginHandler(users *auth.Users, ts auth.TokenService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req LoginRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		if err := users.Authenticate(req.UserName, req.Password); err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				slog.Error("authenticate failed", "err", err)
			}
			ctx.AbortWithError(http.StatusUnauthorized, "invalid credentials")
			return
		}

		token, err := ts.Sign(req.UserName, auth.RoleAdmin)
		if err != nil {
			ctx.AbortWithError(http.StatusInternalServerError, "sign failed")
			return
		}
		ctx.JSON(http.StatusOK, map[string]string{"token": token})
	}
}

func NewUserMeHandler() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		if !ok {
			ctx.AbortWithError(http.StatusInternalServerError, "missing identity")
			return
		}
		ctx.JSON(http.StatusOK, map[string]string{
			"user_id": id.UserID,
			"role":    id.Role,
		})
	}
}
