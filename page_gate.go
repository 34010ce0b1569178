package access

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// PageFeaturePrefix namespaces auth pages in feature gate keys.
const PageFeaturePrefix = "auth.pages."

// PageFeatureKey returns the feature gate key of page.
func PageFeatureKey(page PageName) string {
	return PageFeaturePrefix + string(page)
}

// PageGate exposes the auth page registry as a feature gate. It answers
// page keys, bare page names and the users signup and password reset keys.
type PageGate struct {
	pages *AuthPageRegistry
}

var _ gate.FeatureGate = (*PageGate)(nil)

func NewPageGate(pages *AuthPageRegistry) *PageGate {
	return &PageGate{pages: pages}
}

// Enabled implements gate.FeatureGate. Unknown keys return ErrUnknownPage.
func (g *PageGate) Enabled(_ context.Context, key string, _ ...gate.ResolveOption) (bool, error) {
	page, ok := pageForFeature(key)
	if !ok {
		return false, unknownPage(PageName(key))
	}
	return g.pages.IsEnabled(page), nil
}

func pageForFeature(key string) (PageName, bool) {
	switch key {
	case gate.FeatureUsersSignup:
		return PageSignUp, true
	case gate.FeatureUsersPasswordReset, gate.FeatureUsersPasswordResetFinalize:
		return PagePasswordReset, true
	}
	return ParsePageName(strings.TrimPrefix(key, PageFeaturePrefix))
}

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	return goerrors.Wrap(err, goerrors.CategoryAuthz, "feature gate check failed").
		WithCode(goerrors.CodeForbidden)
}

// RequirePage returns an ErrPageDisabled error when fg reports page as off.
func RequirePage(ctx context.Context, fg gate.FeatureGate, page PageName) error {
	return guard.Require(ctx, fg, PageFeatureKey(page),
		guard.WithDisabledError(newError(ErrPageDisabled, map[string]any{"page": string(page)})),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}
