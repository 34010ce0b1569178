package access

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultFlashCookie carries the "page unavailable" notice across the
// redirect.
const DefaultFlashCookie = "access_flash"

// FallbackHomeURL is used when no home URL is registered.
const FallbackHomeURL = "/"

// PageGuard blocks routes that belong to disabled auth pages. JSON and XHR
// requests get a 403 JSON body, everything else is redirected home with a
// flash notice.
type PageGuard struct {
	gate        gate.FeatureGate
	home        *HomeURLRegistry
	resolver    URLResolver
	flashCookie string
	Logger      Logger
}

// PageGuardOption customizes a PageGuard.
type PageGuardOption func(*PageGuard)

// WithFlashCookie sets the cookie name of the notice, "" disables it.
func WithFlashCookie(name string) PageGuardOption {
	return func(g *PageGuard) {
		g.flashCookie = name
	}
}

// WithPageFeatureGate checks pages against fg instead of the page registry.
func WithPageFeatureGate(fg gate.FeatureGate) PageGuardOption {
	return func(g *PageGuard) {
		if fg != nil {
			g.gate = fg
		}
	}
}

func WithPageGuardLogger(logger Logger) PageGuardOption {
	return func(g *PageGuard) {
		if logger != nil {
			g.Logger = logger
		}
	}
}

func NewPageGuard(pages *AuthPageRegistry, home *HomeURLRegistry, resolver URLResolver, opts ...PageGuardOption) *PageGuard {
	_, logger := ResolveLogger("access.http", nil, nil)
	g := &PageGuard{
		gate:        NewPageGate(pages),
		home:        home,
		resolver:    resolver,
		flashCookie: DefaultFlashCookie,
		Logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// NewSitePageGuard builds a guard on the site registries.
func NewSitePageGuard(site *Site, opts ...PageGuardOption) *PageGuard {
	opts = append([]PageGuardOption{WithPageGuardLogger(site.Logger("access.http"))}, opts...)
	return NewPageGuard(site.Pages, site.Home, site.Routes, opts...)
}

// Require returns middleware that lets the request through only while page
// is enabled.
func (g *PageGuard) Require(page PageName) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			err := RequirePage(ctx.Context(), g.gate, page)
			if err == nil {
				return next(ctx)
			}
			return g.reject(ctx, page, err)
		}
	}
}

func (g *PageGuard) reject(ctx router.Context, page PageName, err error) error {
	if wantsJSON(ctx) {
		g.Logger.Debug("disabled page requested", "page", string(page), "format", "json")
		return ctx.JSON(http.StatusForbidden, map[string]string{
			"error": string(page) + " is currently unavailable.",
		})
	}

	target := FallbackHomeURL
	if url, herr := g.home.HomeURL(ctx.Context(), g.resolver); herr == nil {
		target = url
	} else {
		g.Logger.Warn("no home url for disabled page redirect",
			"page", string(page),
			"fallback", target,
			"error", herr,
		)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		g.Logger.Info("disabled page requested, redirecting",
			"page", string(page),
			"target", target,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	if g.flashCookie != "" {
		ctx.Cookie(&router.Cookie{
			Name:     g.flashCookie,
			Value:    labelFromName(string(page)) + " is currently unavailable.",
			Expires:  time.Now().Add(time.Minute),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Lax",
		})
	}
	return ctx.Redirect(target, http.StatusFound)
}

func wantsJSON(ctx router.Context) bool {
	if strings.HasPrefix(ctx.GetString("Content-Type", ""), "application/json") {
		return true
	}
	return ctx.GetString("X-Requested-With", "") == "XMLHttpRequest"
}

// RequirePermission returns middleware that lets the request through only
// when the principal stored in the router locals holds permission.
func RequirePermission(site *Site, permission string, localsKey ...string) router.MiddlewareFunc {
	key := ""
	if len(localsKey) > 0 {
		key = localsKey[0]
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			p, ok := GetRouterPrincipal(ctx, key)
			if !ok || !site.PrincipalCan(ctx.Context(), p, permission) {
				return newError(ErrPermissionDenied, map[string]any{"permission": permission})
			}
			return next(ctx)
		}
	}
}
