package policy

import (
	"net/http"
	"strconv"
	"time"
)

// Matches reports whether req selects the stored representation: every
// header field named by the stored response's Vary must carry the same value
// it had on the request that produced the stored entry. A request that does
// not match must be treated as a miss, never served the stored body.
func (s *State) Matches(req *http.Request) bool {
	return s.varyMatches(req)
}

// Fresh reports whether the stored response may be reused for req without
// contacting the origin: its current age is within its freshness lifetime
// and neither side demands revalidation. Callers check Matches first; Fresh
// assumes req selects the stored representation.
func (s *State) Fresh(req *http.Request) bool {
	if s.resCacheControl().Has("no-cache") {
		return false
	}
	reqCC := ParseCacheControl(req.Header.Values("Cache-Control"))
	if reqCC.Has("no-cache") || req.Header.Get("Pragma") == "no-cache" {
		return false
	}

	lifetime := s.freshnessLifetime()
	age := s.currentAge(time.Now())

	// request-side limits on the freshness calculation
	if maxAge, ok := reqCC.MaxAge(); ok && age > maxAge {
		return false
	}
	if minFresh, ok := reqCC.MinFresh(); ok && lifetime-age < minFresh {
		return false
	}

	return lifetime > age
}

// freshnessLifetime evaluates the stored response's freshness lifetime using
// the first match of: s-maxage (shared caches only), max-age, then
// Expires minus Date. Responses without explicit expiration have a lifetime
// of zero and always revalidate.
func (s *State) freshnessLifetime() time.Duration {
	cc := s.resCacheControl()
	if s.Shared {
		if val, ok := cc.SMaxAge(); ok {
			return val
		}
	}
	if val, ok := cc.MaxAge(); ok {
		return val
	}
	if expires, err := http.ParseTime(s.ResHeaders.Get("Expires")); err == nil {
		date := s.dateValue()
		if lifetime := expires.Sub(date); lifetime > 0 {
			return lifetime
		}
	}
	return 0
}

// currentAge estimates the response's age at the given instant, correcting
// for clock skew against the origin's Date header and for transit delay.
// Skewed clocks never produce a negative age.
func (s *State) currentAge(now time.Time) time.Duration {
	apparentAge := maxDuration(0, s.ResponseTime.Sub(s.dateValue()))
	responseDelay := maxDuration(0, s.ResponseTime.Sub(s.RequestTime))
	correctedAgeValue := s.ageValue() + responseDelay
	correctedInitialAge := maxDuration(apparentAge, correctedAgeValue)
	residentTime := maxDuration(0, now.Sub(s.ResponseTime))
	return correctedInitialAge + residentTime
}

// dateValue returns the origin's Date header, falling back to the response
// receive time when the header is missing or unparseable.
func (s *State) dateValue() time.Time {
	if date, err := http.ParseTime(s.ResHeaders.Get("Date")); err == nil {
		return date
	}
	return s.ResponseTime
}

// ageValue returns the Age header in a form usable for arithmetic, or zero.
func (s *State) ageValue() time.Duration {
	secs, err := strconv.Atoi(s.ResHeaders.Get("Age"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// varyMatches reports whether the incoming request's selecting headers match
// those of the request that produced the stored response. A Vary of "*"
// never matches.
func (s *State) varyMatches(req *http.Request) bool {
	for _, vary := range s.ResHeaders.Values("Vary") {
		for _, field := range splitCommaList(vary) {
			if field == "*" {
				return false
			}
			if req.Header.Get(field) != s.ReqHeaders.Get(field) {
				return false
			}
		}
	}
	return true
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
