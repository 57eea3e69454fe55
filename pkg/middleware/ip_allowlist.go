package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const ipDecisionCacheSize = 1024

// IPAllowlist rejects clients whose address is not in the configured
// addresses or CIDR blocks. Decisions are cached per client address.
type IPAllowlist struct {
	prefixes  []netip.Prefix
	decisions *lru.Cache[string, bool]
	appLogger *zap.Logger
}

// NewIPAllowlist parses entries like "10.0.0.5" or "192.168.1.0/24".
// Invalid entries are logged and skipped.
func NewIPAllowlist(entries []string, appLogger *zap.Logger) *IPAllowlist {
	if appLogger == nil {
		appLogger = zap.NewNop()
	}
	cache, _ := lru.New[string, bool](ipDecisionCacheSize)
	a := &IPAllowlist{decisions: cache, appLogger: appLogger}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				appLogger.Warn("Ignoring invalid allowlist entry", zap.String("entry", entry), zap.Error(err))
				continue
			}
			a.prefixes = append(a.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			appLogger.Warn("Ignoring invalid allowlist entry", zap.String("entry", entry), zap.Error(err))
			continue
		}
		a.prefixes = append(a.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return a
}

// Middleware returns the echo middleware. With no valid entries every client is allowed.
func (a *IPAllowlist) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(a.prefixes) == 0 || isPublic(c) {
				return next(c)
			}

			clientIP := c.RealIP()
			if allowed, cached := a.decisions.Get(clientIP); cached {
				if !allowed {
					return echo.NewHTTPError(http.StatusForbidden, "Access denied: IP not allowed")
				}
				return next(c)
			}

			allowed := a.Allowed(clientIP)
			a.decisions.Add(clientIP, allowed)
			if !allowed {
				// only first-time denials reach the log
				a.appLogger.Warn("IP access denied - not in allowlist",
					zap.String("client_ip", clientIP),
					zap.String("path", c.Request().URL.Path))
				return echo.NewHTTPError(http.StatusForbidden, "Access denied: IP not allowed")
			}
			return next(c)
		}
	}
}

// Allowed reports whether ip matches any entry
func (a *IPAllowlist) Allowed(ip string) bool {
	if len(a.prefixes) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Networks returns the parsed entries in CIDR form
func (a *IPAllowlist) Networks() []string {
	out := make([]string, len(a.prefixes))
	for i, p := range a.prefixes {
		out[i] = p.String()
	}
	return out
}
