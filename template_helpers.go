package access

import (
	"context"

	"github.com/goliatone/go-router"
)

// FallbackHomeURLName is returned by home_url_name when nothing is registered.
const FallbackHomeURLName = "home"

// TemplateHelpers returns the data and helper functions templates use to
// render navigation, auth forms and home links. It reads the registries on
// every call.
//
// Usage:
//
//	renderer, err := template.NewRenderer(
//	    template.WithBaseDir("./templates"),
//	    template.WithGlobalData(access.TemplateHelpers(ctx, site)),
//	)
//
// In templates:
//
//	{% for item in nav_items %}<a href="{{ item.URL }}">{{ item.Name }}</a>{% endfor %}
//	{% if page_enabled("signup") %}...{% endif %}
//	<label>{{ username_label }}</label>
//	<a href="{{ home_url }}">Home</a>
func TemplateHelpers(ctx context.Context, site *Site) map[string]any {
	home := homeURLOrFallback(ctx, site)

	return map[string]any{
		"nav_items":            site.Navigation.Resolve(ctx, site.Routes),
		"enabled_pages":        pageNames(site.Pages.EnabledPages()),
		"auth_config":          site.Pages.GlobalConfigMap().ToMap(),
		"username_label":       site.Pages.UsernameLabel(),
		"username_placeholder": site.Pages.UsernamePlaceholder(),
		"home_url":             home,
		"home_url_name":        homeURLNameOrFallback(site),

		"page_enabled": func(page string) bool {
			return site.Pages.IsEnabled(PageName(page))
		},
		"home_url_with_fragment": func(fragment string) string {
			if fragment == "" {
				return home
			}
			return home + "#" + fragment
		},
		"is_home_url": func(name string) bool {
			registered := site.Home.HomeURLName()
			return registered != "" && registered == name
		},
	}
}

// TemplateHelpersWithRouter adds request bound helpers to TemplateHelpers.
func TemplateHelpersWithRouter(ctx router.Context, site *Site) map[string]any {
	helpers := TemplateHelpers(ctx.Context(), site)

	home, err := site.HomeURL(ctx.Context())
	helpers["is_home_page"] = err == nil && ctx.Path() == home
	return helpers
}

func homeURLOrFallback(ctx context.Context, site *Site) string {
	url, err := site.HomeURL(ctx)
	if err != nil {
		site.logger.Warn("no home url registered, falling back", "fallback", FallbackHomeURL, "error", err)
		return FallbackHomeURL
	}
	return url
}

func homeURLNameOrFallback(site *Site) string {
	if name := site.Home.HomeURLName(); name != "" {
		return name
	}
	return FallbackHomeURLName
}

func pageNames(pages []PageName) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = string(p)
	}
	return out
}
