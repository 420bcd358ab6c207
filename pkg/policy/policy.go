// Package policy implements the cache-decision engine: pure computation
// over request/response header snapshots, with no I/O.
//
// A State is computed once per stored response and replaced wholesale on
// every successful revalidation. It captures everything needed to later
// recompute freshness and build conditional requests without the original
// request: request/response timing, the original headers, and validators.
package policy

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Options configures policy computation.
type Options struct {
	// Shared selects shared-cache semantics (s-maxage, Authorization
	// restrictions). This module always runs as a private cache.
	Shared bool
}

// State is the serializable caching-policy snapshot for one stored response.
type State struct {
	// RequestTime is the clock value when the request was initiated.
	RequestTime time.Time `json:"request_time"`

	// ResponseTime is the clock value when the response was received.
	ResponseTime time.Time `json:"response_time"`

	// Method is the canonicalized (uppercase) request method.
	Method string `json:"method"`

	// URL is the request URL, which is also the cache key.
	URL string `json:"url"`

	// ReqHeaders are the original request headers, needed for Vary checks
	// and for synthesizing revalidation requests.
	ReqHeaders http.Header `json:"request_headers"`

	// Status is the stored response status code.
	Status int `json:"status"`

	// ResHeaders are the stored response headers.
	ResHeaders http.Header `json:"response_headers"`

	// Shared records the cache-sharing mode the state was computed under.
	Shared bool `json:"shared"`
}

// Compute derives a State from a request/response pair. reqTime and resTime
// are the clock values when the request was sent and the response received.
func Compute(req *http.Request, res *http.Response, reqTime, resTime time.Time, opts Options) *State {
	return &State{
		RequestTime:  reqTime,
		ResponseTime: resTime,
		Method:       strings.ToUpper(req.Method),
		URL:          req.URL.String(),
		ReqHeaders:   req.Header.Clone(),
		Status:       res.StatusCode,
		ResHeaders:   res.Header.Clone(),
		Shared:       opts.Shared,
	}
}

// Storable reports whether the response may be written to the cache.
// Responses explicitly marked no-store, responses to methods the cache does
// not understand, and responses carrying neither explicit freshness
// information nor a validator are not storable.
func (s *State) Storable() bool {
	if !methodUnderstood(s.Method) {
		return false
	}
	// status must be final
	if s.Status < 200 || s.Status > 599 {
		return false
	}
	cc := s.resCacheControl()
	if cc.Has("no-store") {
		return false
	}
	// a Vary of "*" can never be matched by a later request
	for _, vary := range s.ResHeaders.Values("Vary") {
		for _, field := range splitCommaList(vary) {
			if field == "*" {
				return false
			}
		}
	}
	if s.Shared {
		if cc.Has("private") {
			return false
		}
		if s.ReqHeaders.Get("Authorization") != "" && !cc.Has("public") && !cc.Has("s-maxage") {
			return false
		}
	}
	return s.hasExplicitFreshness() || s.hasValidator()
}

// RevalidationRequest clones req and adds conditional headers derived from
// the stored validators, preserving all other request semantics.
func (s *State) RevalidationRequest(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	out.Method = strings.ToUpper(out.Method)
	// prefer the entity tag, but send both validators when available
	if etag := s.etag(); etag != "" {
		out.Header.Set("If-None-Match", etag)
	}
	if lastMod := s.lastModified(); lastMod != "" {
		out.Header.Set("If-Modified-Since", lastMod)
	}
	return out
}

// ResponseHeaders rebuilds the response headers as they should appear to a
// caller served from the cache: the stored headers minus hop-by-hop fields,
// with a computed Age.
func (s *State) ResponseHeaders() http.Header {
	headers := s.ResHeaders.Clone()
	for _, name := range hopByHopHeaders {
		headers.Del(name)
	}
	for _, conn := range s.ResHeaders.Values("Connection") {
		for _, name := range strings.Split(conn, ",") {
			if name = strings.TrimSpace(name); name != "" {
				headers.Del(name)
			}
		}
	}
	age := int(s.currentAge(time.Now()).Seconds())
	if age < 0 {
		age = 0
	}
	headers.Set("Age", strconv.Itoa(age))
	return headers
}

// MergeRevalidation merges the outcome of a revalidation fetch into a new
// State. When the origin indicates the stored response is still current
// (304, or a 2xx carrying the same entity tag), the returned state keeps the
// stored identity with freshened headers and timing, and modified is false.
// Otherwise the new response replaces the stored one and modified is true.
func (s *State) MergeRevalidation(req *http.Request, res *http.Response, reqTime, resTime time.Time) (*State, bool) {
	if s.matchesStored(res) {
		next := *s
		next.RequestTime = reqTime
		next.ResponseTime = resTime
		// the stored request headers stay: they are the Vary basis of the
		// retained body, and the revalidating request did not produce it
		next.ResHeaders = freshenHeaders(s.ResHeaders, res.Header)
		return &next, false
	}
	return Compute(req, res, reqTime, resTime, Options{Shared: s.Shared}), true
}

// TimeToLive returns the remaining freshness lifetime of the stored
// response, clamped to zero. It is the TTL handed to the store on write.
func (s *State) TimeToLive() time.Duration {
	ttl := s.freshnessLifetime() - s.currentAge(time.Now())
	if ttl < 0 {
		return 0
	}
	return ttl
}

// matchesStored reports whether the revalidation response confirms the
// stored response is still current.
func (s *State) matchesStored(res *http.Response) bool {
	if res.StatusCode == http.StatusNotModified {
		return true
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if etag := s.etag(); etag != "" && res.Header.Get("ETag") == etag {
			return true
		}
	}
	return false
}

// freshenHeaders updates stored headers with those of a not-modified
// response, keeping fields the stored body depends on.
func freshenHeaders(stored, update http.Header) http.Header {
	merged := stored.Clone()
	for name, values := range update {
		if skipOnFreshen(name) {
			continue
		}
		merged[name] = append([]string(nil), values...)
	}
	return merged
}

func skipOnFreshen(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Content-Length", "Content-Range":
		return true
	}
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (s *State) resCacheControl() CacheControl {
	return ParseCacheControl(s.ResHeaders.Values("Cache-Control"))
}

func (s *State) hasExplicitFreshness() bool {
	cc := s.resCacheControl()
	if _, ok := cc.MaxAge(); ok {
		return true
	}
	if s.Shared {
		if _, ok := cc.SMaxAge(); ok {
			return true
		}
	}
	return s.ResHeaders.Get("Expires") != ""
}

func (s *State) hasValidator() bool {
	return s.etag() != "" || s.lastModified() != ""
}

func (s *State) etag() string {
	return s.ResHeaders.Get("ETag")
}

func (s *State) lastModified() string {
	return s.ResHeaders.Get("Last-Modified")
}

func methodUnderstood(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	}
	return false
}
