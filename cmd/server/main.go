package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/traitlab/traitlab/internal/ai"
	"github.com/traitlab/traitlab/internal/api"
	dbstore "github.com/traitlab/traitlab/internal/db"
	"github.com/traitlab/traitlab/internal/middleware"
	"github.com/traitlab/traitlab/internal/services"
	"github.com/traitlab/traitlab/internal/utils"
)

func main() {
	addr := utils.SafeEnv("TRAITLAB_ADDR", ":8080")
	commit := os.Getenv("TRAITLAB_COMMIT")
	buildTime := os.Getenv("TRAITLAB_BUILD_TIME")

	store, err := openStore()
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}

	mux := http.NewServeMux()
	api.NewRouter(store, newAnalyzer()).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "TraitLab API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Frontend serving strategy (priority):
	// 1) Static files if TRAITLAB_STATIC_DIR is set (fullstack image)
	// 2) Dev proxy if TRAITLAB_DEV_FRONTEND_URL is set (proxy / to Vite dev)
	if staticDir := os.Getenv("TRAITLAB_STATIC_DIR"); staticDir != "" {
		fs := http.FileServer(http.Dir(staticDir))
		mux.Handle("/", fs)
	} else if devURL := os.Getenv("TRAITLAB_DEV_FRONTEND_URL"); devURL != "" {
		if u, err := url.Parse(devURL); err == nil {
			rp := httputil.NewSingleHostReverseProxy(u)
			// Ensure no-store headers also apply to proxied responses
			rp.ModifyResponse = func(res *http.Response) error {
				res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
				res.Header.Set("Pragma", "no-cache")
				res.Header.Set("Expires", "0")
				return nil
			}
			mux.Handle("/", rp)
		} else {
			log.Printf("invalid TRAITLAB_DEV_FRONTEND_URL=%q: %v", devURL, err)
		}
	}

	handler := middleware.NoStore(middleware.SecureHeaders(middleware.CORS(middleware.WithAuth(mux))))

	log.Printf("TraitLab server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore picks sqlite when TRAITLAB_SQLITE_PATH is set and falls back to
// the in-memory store for throwaway runs.
func openStore() (api.Store, error) {
	sqlitePath := os.Getenv("TRAITLAB_SQLITE_PATH")
	if sqlitePath == "" {
		log.Printf("TRAITLAB_SQLITE_PATH not set, using volatile in-memory store")
		return api.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(sqlitePath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dbstore.RunMigrations(sqliteDB, os.Getenv("TRAITLAB_MIGRATIONS_DIR")); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return dbstore.NewStore(sqliteDB)
}

func newAnalyzer() services.Analyzer {
	cfg := ai.ConfigFromEnv()
	if cfg.APIKey == "" {
		log.Printf("GEMINI_API_KEY not set, AI analysis disabled; submissions go to manual review")
		return ai.Disabled()
	}
	analyzer, err := ai.NewGeminiAnalyzer(context.Background(), cfg)
	if err != nil {
		log.Printf("gemini analyzer init failed: %v; AI analysis disabled", err)
		return ai.Disabled()
	}
	return analyzer
}
