package static

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// Handler 提供前端静态资源
type Handler struct {
	dir string
}

// New 创建静态资源处理器，dir 下应包含 index.html 与 assert 目录
func New(dir string) *Handler {
	return &Handler{dir: dir}
}

// RegisterRoutes 注册首页、资源目录与单页应用回退
func (h *Handler) RegisterRoutes(r chi.Router) {
	assets := http.StripPrefix("/assert/", http.FileServer(http.Dir(filepath.Join(h.dir, "assert"))))
	r.Handle("/assert/*", assets)
	r.Get("/", h.handleIndex)
	r.NotFound(h.handleIndex)
}

// handleIndex 返回 index.html
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
