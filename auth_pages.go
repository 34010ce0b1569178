package access

import (
	"slices"
	"sync"
)

// PageName identifies one of the fixed authentication pages.
type PageName string

const (
	PageSignIn            PageName = "signin"
	PageSignUp            PageName = "signup"
	PageLogout            PageName = "logout"
	PageProfileUpdate     PageName = "profile_update"
	PagePasswordReset     PageName = "password_reset"
	PageEmailVerification PageName = "email_verification"
)

// EnabledKey is the config key BulkConfigure reads to toggle a page.
const EnabledKey = "enabled"

const (
	UsernameLabelKey       = "username_field_label"
	UsernamePlaceholderKey = "username_field_placeholder"

	defaultUsernameLabel       = "Username"
	defaultUsernamePlaceholder = "Enter your username"
)

var pageOrder = []PageName{
	PageSignIn,
	PageSignUp,
	PageLogout,
	PageProfileUpdate,
	PagePasswordReset,
	PageEmailVerification,
}

var pageDefaults = map[PageName]bool{
	PageSignIn:            true,
	PageSignUp:            true,
	PageLogout:            true,
	PageProfileUpdate:     true,
	PagePasswordReset:     false,
	PageEmailVerification: false,
}

// AllPages returns every known page in display order.
func AllPages() []PageName {
	return slices.Clone(pageOrder)
}

// IsValid reports whether p is a known page.
func (p PageName) IsValid() bool {
	_, ok := pageDefaults[p]
	return ok
}

// ParsePageName converts s into a PageName.
func ParsePageName(s string) (PageName, bool) {
	p := PageName(s)
	return p, p.IsValid()
}

// PageStatus is the enabled flag and config of a page.
type PageStatus struct {
	Name    PageName  `json:"name"`
	Enabled bool      `json:"enabled"`
	Config  ConfigMap `json:"config"`
}

// AuthPageRegistry tracks which auth pages are reachable and how they are
// configured. State lives in memory only and starts from the defaults.
type AuthPageRegistry struct {
	mu      sync.RWMutex
	enabled map[PageName]bool
	configs map[PageName]ConfigMap
	global  ConfigMap
	logger  Logger
}

// AuthPageOption customizes an AuthPageRegistry.
type AuthPageOption func(*AuthPageRegistry)

// WithAuthPagesLogger sets the logger.
func WithAuthPagesLogger(logger Logger) AuthPageOption {
	return func(r *AuthPageRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewAuthPageRegistry returns a registry seeded with the page defaults.
func NewAuthPageRegistry(opts ...AuthPageOption) *AuthPageRegistry {
	_, logger := ResolveLogger("access.auth_pages", nil, nil)
	r := &AuthPageRegistry{logger: logger}
	r.reset()
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Reset restores the default page states, drops page configs and resets the
// global config.
func (r *AuthPageRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *AuthPageRegistry) reset() {
	r.enabled = make(map[PageName]bool, len(pageDefaults))
	for name, on := range pageDefaults {
		r.enabled[name] = on
	}
	r.configs = map[PageName]ConfigMap{}
	r.global = ConfigMap{
		UsernameLabelKey:       String(defaultUsernameLabel),
		UsernamePlaceholderKey: String(defaultUsernamePlaceholder),
	}
}

func unknownPage(name PageName) error {
	return newError(ErrUnknownPage, map[string]any{
		"page":  string(name),
		"known": pageOrder,
	})
}

// Enable turns a page on. A non empty cfg replaces the page config.
func (r *AuthPageRegistry) Enable(name PageName, cfg ConfigMap) error {
	if !name.IsValid() {
		return unknownPage(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.enable(name, cfg)
	return nil
}

func (r *AuthPageRegistry) enable(name PageName, cfg ConfigMap) {
	r.enabled[name] = true
	if len(cfg) > 0 {
		r.configs[name] = cfg.Clone()
	}
}

// Disable turns a page off and clears its config.
func (r *AuthPageRegistry) Disable(name PageName) error {
	if !name.IsValid() {
		return unknownPage(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.disable(name)
	return nil
}

func (r *AuthPageRegistry) disable(name PageName) {
	r.enabled[name] = false
	delete(r.configs, name)
}

// IsEnabled reports whether a page is on. Unknown pages are off.
func (r *AuthPageRegistry) IsEnabled(name PageName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// Configure replaces the page config without changing its enabled state.
func (r *AuthPageRegistry) Configure(name PageName, cfg ConfigMap) error {
	if !name.IsValid() {
		return unknownPage(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg.Clone()
	return nil
}

// BulkConfigure applies several page configs at once. An "enabled" bool key
// toggles the page, every other key becomes the page config. The batch is
// validated before anything is applied.
func (r *AuthPageRegistry) BulkConfigure(pages map[PageName]ConfigMap) error {
	type change struct {
		name    PageName
		toggle  *bool
		config  ConfigMap
		hasConf bool
	}

	changes := make([]change, 0, len(pages))
	for _, name := range sortedPageKeys(pages) {
		if !name.IsValid() {
			return unknownPage(name)
		}

		cfg := pages[name].Clone()
		c := change{name: name}

		if raw, ok := cfg[EnabledKey]; ok {
			on, isBool := raw.BoolValue()
			if !isBool {
				return newError(ErrInvalidConfigValue, map[string]any{
					"page":   string(name),
					"key":    EnabledKey,
					"kind":   raw.Kind().String(),
					"reason": "enabled must be a bool",
				})
			}
			c.toggle = &on
			delete(cfg, EnabledKey)
		}

		if len(cfg) > 0 {
			c.config = cfg
			c.hasConf = true
		}
		changes = append(changes, c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range changes {
		if c.toggle != nil {
			if *c.toggle {
				r.enabled[c.name] = true
			} else {
				r.disable(c.name)
			}
		}
		if c.hasConf {
			r.configs[c.name] = c.config
		}
	}

	r.logger.Debug("auth pages bulk configured", "pages", len(changes))
	return nil
}

// sortedPageKeys orders known pages first, then unknown names, so validation
// errors are reported deterministically.
func sortedPageKeys(pages map[PageName]ConfigMap) []PageName {
	keys := make([]PageName, 0, len(pages))
	for _, name := range pageOrder {
		if _, ok := pages[name]; ok {
			keys = append(keys, name)
		}
	}

	var unknown []PageName
	for name := range pages {
		if !name.IsValid() {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	return append(unknown, keys...)
}

// EnabledPages returns the pages that are on, in the fixed page order.
func (r *AuthPageRegistry) EnabledPages() []PageName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PageName, 0, len(pageOrder))
	for _, name := range pageOrder {
		if r.enabled[name] {
			out = append(out, name)
		}
	}
	return out
}

// PageConfig returns a copy of the page config. Unknown pages yield an empty map.
func (r *AuthPageRegistry) PageConfig(name PageName) ConfigMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name].Clone()
}

// AllPagesStatus returns every page with its state.
func (r *AuthPageRegistry) AllPagesStatus() []PageStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PageStatus, 0, len(pageOrder))
	for _, name := range pageOrder {
		out = append(out, PageStatus{
			Name:    name,
			Enabled: r.enabled[name],
			Config:  r.configs[name].Clone(),
		})
	}
	return out
}

// SetGlobalConfig merges cfg into the global auth config. Last write wins.
func (r *AuthPageRegistry) SetGlobalConfig(cfg ConfigMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global.Merge(cfg)
}

// GlobalConfig returns a single global config value.
func (r *AuthPageRegistry) GlobalConfig(key string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global.Get(key)
}

// GlobalConfigMap returns a copy of the whole global config.
func (r *AuthPageRegistry) GlobalConfigMap() ConfigMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global.Clone()
}

// ConfigureUsernameField sets the username label and placeholder. Empty
// arguments leave the current value untouched.
func (r *AuthPageRegistry) ConfigureUsernameField(label, placeholder string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if label != "" {
		r.global[UsernameLabelKey] = String(label)
	}
	if placeholder != "" {
		r.global[UsernamePlaceholderKey] = String(placeholder)
	}
}

func (r *AuthPageRegistry) UsernameLabel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global.GetString(UsernameLabelKey, defaultUsernameLabel)
}

func (r *AuthPageRegistry) UsernamePlaceholder() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global.GetString(UsernamePlaceholderKey, defaultUsernamePlaceholder)
}
