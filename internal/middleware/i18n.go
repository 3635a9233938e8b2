package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"monteur/internal/domain"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

var (
	supportedTags = []language.Tag{language.French, language.English}
	localeMatcher = language.NewMatcher(supportedTags)
)

// francophone countries default to French when the browser sends no usable
// language preference.
var francophone = map[string]struct{}{
	"FR": {}, "BE": {}, "CH": {}, "LU": {}, "MC": {}, "CA": {},
	"SN": {}, "CI": {}, "CM": {}, "MA": {}, "TN": {}, "DZ": {},
	"RE": {}, "GP": {}, "MQ": {}, "GF": {}, "YT": {}, "NC": {}, "PF": {},
}

// I18N stores the negotiated locale (fr or en) and the best-effort country in
// the request context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string, country string) string {
	if v := normalizeLocale(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	if v := normalizeLocale(r.URL.Query().Get("lang")); v != "" {
		return v
	}
	if v := matchAcceptLanguage(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	if country != "" {
		if _, ok := francophone[strings.ToUpper(country)]; ok {
			return domain.LocaleFR
		}
		return domain.LocaleEN
	}
	if v := normalizeLocale(fallback); v != "" {
		return v
	}
	return domain.LocaleFR
}

// matchAcceptLanguage picks fr or en from an Accept-Language header, or ""
// when the header names neither.
func matchAcceptLanguage(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	return tagLocale(supportedTags[idx])
}

// normalizeLocale maps a single tag such as "fr-CA" or "EN" to a supported
// locale, or "" when it is neither French nor English.
func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return tagLocale(tag)
}

func tagLocale(tag language.Tag) string {
	base, _ := tag.Base()
	switch base.String() {
	case domain.LocaleFR:
		return domain.LocaleFR
	case domain.LocaleEN:
		return domain.LocaleEN
	}
	return ""
}

// ClientIP returns the best-effort client IP address for the request: the
// first valid X-Forwarded-For entry, then the remote host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip != "" && net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}

// LocaleFromContext returns the negotiated locale, fr when none was stored.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return domain.LocaleFR
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the given request.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	headerHints := []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}
	for _, key := range headerHints {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" && !strings.EqualFold(val, "XX") {
			return strings.ToUpper(val)
		}
	}
	if region := localeRegion(r.Header.Get("X-Locale")); region != "" {
		return region
	}
	if region := localeRegion(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// localeRegion returns the region of the first tag that names one explicitly.
func localeRegion(accept string) string {
	for _, part := range strings.Split(accept, ",") {
		raw := strings.TrimSpace(strings.Split(part, ";")[0])
		if raw == "" || !strings.ContainsAny(raw, "-_") {
			continue
		}
		tag, err := language.Parse(raw)
		if err != nil {
			continue
		}
		if region, conf := tag.Region(); conf == language.Exact {
			return region.String()
		}
	}
	return ""
}
