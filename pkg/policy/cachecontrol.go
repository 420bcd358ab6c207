package policy

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl holds the parsed directives of one or more Cache-Control
// header lines. Directive names are compared case-insensitively and
// arguments may use either token or quoted-string syntax.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl parses Cache-Control header values into a CacheControl.
// When a directive appears more than once, the last occurrence wins.
func ParseCacheControl(values []string) CacheControl {
	m := make(map[string]string)
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			name, arg, _ := strings.Cut(directive, "=")
			m[strings.ToLower(name)] = strings.Trim(arg, `"`)
		}
	}
	return CacheControl{directives: m}
}

// Get returns the argument of the named directive and whether it is present.
func (c CacheControl) Get(name string) (string, bool) {
	val, ok := c.directives[name]
	return val, ok
}

// Has reports whether the named directive is present.
func (c CacheControl) Has(name string) bool {
	_, ok := c.directives[name]
	return ok
}

// MaxAge returns the max-age directive as a duration.
// Invalid or negative values are treated as absent.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.seconds("max-age")
}

// SMaxAge returns the s-maxage directive as a duration.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.seconds("s-maxage")
}

// MinFresh returns the min-fresh request directive as a duration.
func (c CacheControl) MinFresh() (time.Duration, bool) {
	return c.seconds("min-fresh")
}

// splitCommaList splits a comma-separated header value into trimmed,
// non-empty elements.
func splitCommaList(value string) []string {
	var out []string
	for _, elem := range strings.Split(value, ",") {
		if elem = strings.TrimSpace(elem); elem != "" {
			out = append(out, elem)
		}
	}
	return out
}

func (c CacheControl) seconds(name string) (time.Duration, bool) {
	arg, ok := c.directives[name]
	if !ok {
		return 0, false
	}
	secs, err := strconv.Atoi(arg)
	if err != nil || secs < 0 {
		// responses with invalid freshness information are considered stale
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
