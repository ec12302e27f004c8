package remote

import (
	"bytes"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/natefinch/atomic"
)

// NewHandler serves the document API off a root directory. It is the
// development stand-in for the research repository, used by cmd/docstored
// and the integration tests. An empty token disables authentication.
func NewHandler(root, token string, logger *slog.Logger) http.Handler {
	h := &handler{
		root:   root,
		token:  token,
		logger: logger.With(slog.String("component", "docstore")),
	}
	r := chi.NewRouter()
	r.Use(h.auth)
	r.Get("/documents", h.list)
	r.Get("/documents/*", h.get)
	r.Head("/documents/*", h.head)
	r.Put("/documents/*", h.put)
	r.Delete("/documents/*", h.del)
	return r
}

type handler struct {
	root   string
	token  string
	logger *slog.Logger
}

func (h *handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != h.token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// docPath resolves the wildcard into a file path under root, refusing
// anything that would escape it.
func (h *handler) docPath(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "*")
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", false
	}
	return filepath.Join(h.root, filepath.FromSlash(cleaned)), true
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.docPath(r)
	if !ok {
		http.Error(w, "invalid document path", http.StatusBadRequest)
		return
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to read document", "path", p, "err", err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *handler) head(w http.ResponseWriter, r *http.Request) {
	p, ok := h.docPath(r)
	if !ok {
		http.Error(w, "invalid document path", http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	p, ok := h.docPath(r)
	if !ok {
		http.Error(w, "invalid document path", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to create document directory", "path", p, "err", err)
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to write document", "path", p, "err", err)
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) del(w http.ResponseWriter, r *http.Request) {
	p, ok := h.docPath(r)
	if !ok {
		http.Error(w, "invalid document path", http.StatusBadRequest)
		return
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to delete document", "path", p, "err", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	names := []string{}
	err := filepath.WalkDir(h.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		h.logger.ErrorContext(r.Context(), "Failed to list documents", "err", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	slices.Sort(names)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(names)
}
