package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-chat/backend/internal/middleware"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/account"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Accounts 账号服务
type Accounts interface {
	Signup(ctx context.Context, account, password string) (chat.User, error)
	Login(ctx context.Context, account, password string) (chat.User, error)
	User(ctx context.Context, id int64) (chat.User, error)
}

// Sessions 会话注册表
type Sessions interface {
	Create(principalID int64) string
	Revoke(token string)
}

// CookieConfig 会话 Cookie 配置
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler 登录注册相关的HTTP处理器
type Handler struct {
	accounts Accounts
	sessions Sessions
	cookie   CookieConfig
}

// New 创建认证处理器
func New(accounts Accounts, sessions Sessions, cookie CookieConfig) *Handler {
	return &Handler{
		accounts: accounts,
		sessions: sessions,
		cookie:   cookie,
	}
}

// RegisterRoutes 注册无需登录的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)
}

// RegisterProtectedRoutes 注册需要会话的路由
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth", h.handleAuth)
}

type credentials struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// handleSignup 注册账号并登录
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.Signup(r.Context(), payload.Account, payload.Password)
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, err.Error())
		return
	case errors.Is(err, account.ErrAccountExists):
		utils.RespondError(w, http.StatusConflict, utils.CodeDuplicateEntry,
			"The provided account name is already taken. Please choose a different one.")
		return
	case err != nil:
		utils.RespondInternalError(w, err)
		return
	}

	h.startSession(w, r, user)
	utils.RespondOK(w, "Account created", nil)
}

// handleLogin 校验账号密码并下发会话
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.Login(r.Context(), payload.Account, payload.Password)
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, err.Error())
		return
	case errors.Is(err, account.ErrInvalidCredentials):
		utils.RespondError(w, http.StatusNotFound, utils.CodeAccountNotFound,
			"Your account or password is incorrect")
		return
	case err != nil:
		utils.RespondInternalError(w, err)
		return
	}

	h.startSession(w, r, user)
	utils.RespondOK(w, "Login", nil)
}

// handleLogout 注销会话并清除 Cookie
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
		h.sessions.Revoke(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
	})
	utils.RespondOK(w, "Logout", nil)
}

// handleAuth 返回当前会话对应的用户
func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalID(r.Context())
	if !ok {
		utils.RespondUnauthorized(w)
		return
	}

	user, err := h.accounts.User(r.Context(), principalID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			utils.RespondUnauthorized(w)
			return
		}
		utils.RespondInternalError(w, err)
		return
	}

	utils.RespondOK(w, "Authorized", user)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user chat.User) {
	token := h.sessions.Create(user.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
	})
	zerolog.Ctx(r.Context()).Info().Int64("user_id", user.ID).Msg("session started")
}
