package access

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Module is a feature module that declares roles, pages, navigation and a
// home URL while the site starts. Modules run in any order.
type Module interface {
	Name() string
	Register(site *Site) error
}

// ModuleFunc adapts a function to the Module interface.
type ModuleFunc struct {
	ModuleName string
	Fn         func(site *Site) error
}

func (m ModuleFunc) Name() string { return m.ModuleName }

func (m ModuleFunc) Register(site *Site) error {
	if m.Fn == nil {
		return nil
	}
	return m.Fn(site)
}

// Site wires the registries, the store, the event bus and the services built
// on them. Membership changes published by the principal service reach the
// reconciler through the bus.
type Site struct {
	Pages       *AuthPageRegistry
	Roles       *RoleRegistry
	Permissions *PermissionRegistry
	Navigation  *NavigationRegistry
	Home        *HomeURLRegistry
	Routes      URLResolver

	Store      Store
	Events     *EventBus
	Reconciler *StaffStatusReconciler
	Principals *PrincipalService
	Admin      *RoleAdmin
	Metrics    *Metrics

	activity       ActivitySink
	loggerProvider LoggerProvider
	logger         Logger
	queueSize      int
	registerer     prometheus.Registerer
	installed      []string
}

// SiteOption customizes a Site.
type SiteOption func(*Site)

// WithStore sets the entity store. The default is an in-memory store.
func WithStore(store Store) SiteOption {
	return func(s *Site) {
		if store != nil {
			s.Store = store
		}
	}
}

// WithRoutes sets the resolver used for navigation and the home URL.
func WithRoutes(resolver URLResolver) SiteOption {
	return func(s *Site) {
		if resolver != nil {
			s.Routes = resolver
		}
	}
}

func WithLoggerProvider(provider LoggerProvider) SiteOption {
	return func(s *Site) {
		s.loggerProvider = provider
	}
}

func WithLogger(logger Logger) SiteOption {
	return func(s *Site) {
		s.logger = logger
	}
}

func WithActivitySink(sink ActivitySink) SiteOption {
	return func(s *Site) {
		s.activity = sink
	}
}

// WithEventQueue makes the event bus asynchronous. Call Start to run it.
func WithEventQueue(size int) SiteOption {
	return func(s *Site) {
		s.queueSize = size
	}
}

// WithMetricsRegisterer registers the reconciliation metrics.
func WithMetricsRegisterer(reg prometheus.Registerer) SiteOption {
	return func(s *Site) {
		s.registerer = reg
	}
}

// NewSite builds a site with empty registries.
func NewSite(opts ...SiteOption) *Site {
	s := &Site{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.loggerProvider, s.logger = ResolveLogger("access.site", s.loggerProvider, s.logger)
	named := func(name string) Logger {
		_, l := ResolveLogger(name, s.loggerProvider, nil)
		return l
	}

	if s.Store == nil {
		s.Store = NewMemoryStore()
	}
	if s.Routes == nil {
		s.Routes = NewRouteTable(nil)
	}
	s.activity = normalizeActivitySink(s.activity)
	if s.registerer != nil {
		s.Metrics = NewMetrics(s.registerer)
	}

	s.Pages = NewAuthPageRegistry(WithAuthPagesLogger(named("access.pages")))
	s.Roles = NewRoleRegistry(WithRoleRegistryLogger(named("access.roles")))
	s.Permissions = NewPermissionRegistry(
		WithPermissionRoles(s.Roles),
		WithPermissionLogger(named("access.permissions")),
	)
	s.Navigation = NewNavigationRegistry(WithNavigationLogger(named("access.navigation")))
	s.Home = NewHomeURLRegistry(WithHomeLogger(named("access.home")))

	s.Events = NewEventBus(
		WithQueue(s.queueSize),
		WithEventBusLogger(named("access.events")),
	)

	s.Reconciler = NewStaffStatusReconciler(s.Store.Principals(), s.Roles,
		WithReconcilerLogger(named("access.reconciler")),
		WithReconcilerActivitySink(s.activity),
		WithReconcilerMetrics(s.Metrics),
	)
	s.Events.Subscribe(s.Reconciler)

	s.Principals = NewPrincipalService(s.Store.Principals(), s.Roles,
		WithPrincipalEvents(s.Events),
		WithPrincipalActivitySink(s.activity),
		WithPrincipalLogger(named("access.principals")),
	)
	s.Admin = NewRoleAdmin(s.Store, s.Roles, s.Permissions,
		WithRoleAdminEvents(s.Events),
		WithRoleAdminActivitySink(s.activity),
		WithRoleAdminLogger(named("access.admin")),
	)
	return s
}

// Install runs each module's Register hook in the given order. The first
// failing module stops the install.
func (s *Site) Install(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := m.Name()
		if err := m.Register(s); err != nil {
			s.logger.Error("module registration failed", "module", name, "error", err)
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("module %s failed to register", name)).
				WithMetadata(map[string]any{"module": name})
		}
		s.installed = append(s.installed, name)
		s.logger.Debug("module registered", "module", name)
	}
	return nil
}

// Modules returns the names of installed modules in install order.
func (s *Site) Modules() []string {
	return append([]string(nil), s.installed...)
}

// Start starts the event bus worker when the bus is queued.
func (s *Site) Start() { s.Events.Start() }

// Close drains the event bus.
func (s *Site) Close() { s.Events.Close() }

// Logger returns a named logger from the site's provider.
func (s *Site) Logger(name string) Logger {
	_, l := ResolveLogger(name, s.loggerProvider, nil)
	return l
}

// HomeURL resolves the registered home URL.
func (s *Site) HomeURL(ctx context.Context) (string, error) {
	return s.Home.HomeURL(ctx, s.Routes)
}

// SetupRoles returns the setup roles command bound to the site.
func (s *Site) SetupRoles() *SetupRolesHandler {
	return NewSetupRolesHandler(s.Store, s.Roles, s.Reconciler).
		WithActivitySink(s.activity).
		WithLogger(s.Logger("access.commands"))
}

// SetupRolePermissions returns the permission setup command bound to the site.
func (s *Site) SetupRolePermissions() *SetupRolePermissionsHandler {
	return NewSetupRolePermissionsHandler(s.Store, s.Roles, s.Permissions).
		WithActivitySink(s.activity).
		WithLogger(s.Logger("access.commands"))
}

// SyncStaffStatus returns the staff sync command bound to the site.
func (s *Site) SyncStaffStatus() *SyncStaffStatusHandler {
	return NewSyncStaffStatusHandler(s.Reconciler).
		WithLogger(s.Logger("access.commands"))
}

// CreateGroupsIfNeeded persists every declared role that has no record and
// reconciles all principals. Run it after migrations.
func (s *Site) CreateGroupsIfNeeded(ctx context.Context) (SetupRolesResult, error) {
	return s.SetupRoles().Execute(ctx, SetupRolesMessage{UpdateUsers: true})
}

// LoadPermissions copies the persisted permissions of every declared role
// into the permission registry.
func (s *Site) LoadPermissions(ctx context.Context) error {
	for _, role := range s.Roles.RoleNames() {
		ids, err := s.Store.Roles().RolePermissions(ctx, role)
		if err != nil {
			return err
		}
		rejects, err := s.Permissions.SetPermissions(role, ids)
		if err != nil {
			return err
		}
		for _, r := range rejects {
			s.logger.Warn("stored permission rejected", "role", r.Role, "permission", r.Permission, "error", r.Err)
		}
	}
	return nil
}
