package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fetchcache/fetchcache/pkg/fetch"
	"github.com/fetchcache/fetchcache/pkg/logging"
	"github.com/fetchcache/fetchcache/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Configuration from environment
	port := getEnv("PORT", "8080")
	originURL := getEnv("ORIGIN_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	cacheDir := getEnv("CACHE_DIR", "")
	namespace := getEnv("CACHE_NAMESPACE", "fetchcache")
	noStore := splitPatterns(getEnv("NO_STORE_PATTERNS", ""))

	if originURL == "" {
		log.Fatal("ORIGIN_URL is required")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	cacheStore, closeStore, err := buildStore(redisURL, cacheDir, namespace)
	if err != nil {
		log.Fatalf("Failed to create cache store: %v", err)
	}
	defer closeStore()

	cacheClient, err := fetch.New(fetch.Config{
		Transport:       &http.Client{Timeout: 30 * time.Second},
		Store:           cacheStore,
		NoStorePatterns: noStore,
	})
	if err != nil {
		log.Fatalf("Failed to create caching client: %v", err)
	}
	defer cacheClient.Close()

	http.HandleFunc("/health", healthHandler)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/", proxyHandler(cacheClient, strings.TrimSuffix(originURL, "/")))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("origin", originURL).
		Msg("Starting caching proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// buildStore selects the store backend: Redis when configured, an on-disk
// LevelDB store when a cache directory is given, memory otherwise.
func buildStore(redisURL, cacheDir, namespace string) (store.Store, func(), error) {
	opts := store.DefaultOptions()
	opts.Namespace = namespace

	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store.NewRedisStore(redisClient, opts), func() { redisClient.Close() }, nil
	}

	if cacheDir != "" {
		levelStore, err := store.NewLevelStore(cacheDir, opts)
		if err != nil {
			return nil, nil, err
		}
		return levelStore, func() { levelStore.Close() }, nil
	}

	return store.NewMemoryStore(opts), func() {}, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// proxyHandler forwards every request to the origin through the caching
// client and relays the response unchanged.
func proxyHandler(cacheClient *fetch.Client, origin string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		target := origin + r.URL.RequestURI()
		req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("Bad request: %v", err), http.StatusBadRequest)
			return
		}
		copyHeader(req.Header, r.Header)

		resp, err := cacheClient.Do(req)
		if err != nil {
			http.Error(w, fmt.Sprintf("Origin request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Printf("Failed to write response: %v", err)
		}
	}
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func splitPatterns(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
