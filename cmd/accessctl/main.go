// Command accessctl runs the role maintenance tasks against a database:
// schema migration, role setup, permission import and staff sync, once or
// on a schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	access "github.com/gcimedia/go-access"
	"github.com/gcimedia/go-access/activitymap"
	featuregateadapter "github.com/gcimedia/go-access/adapters/featuregate"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

const usage = `usage: accessctl <command> [flags]

commands:
  migrate              create the schema
  setup-roles          persist declared roles (--force, --update-users, --dry-run)
  setup-permissions    import role permissions (--file, --role, --dry-run)
  sync-staff           reconcile staff flags (--dry-run)
  roles                print the declared roles
  claims               print the feature gate claims of a principal (--principal)
  schedule             run sync-staff on ACCESS_SYNC_SCHEDULE and serve metrics
`

// defaultRoles is installed when no manifest is configured.
var defaultRoles = access.ModuleFunc{
	ModuleName: "defaults",
	Fn: func(site *access.Site) error {
		return site.Roles.RegisterRoles([]access.RoleInput{
			access.Role{Name: "student", Label: "Student", IsDefault: true},
			access.Role{Name: "instructor", Label: "Instructor", IsStaff: true},
			access.Role{Name: "admin", Label: "Administrator", IsStaff: true},
		}, "")
	},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "accessctl: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	access.ConfigureDefaultLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := cfg.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if command == "migrate" {
		return access.Migrate(ctx, db)
	}

	repo := access.NewRepositoryManager(db)
	repo.MustValidate()

	registry := prometheus.NewRegistry()
	var site *access.Site
	opts := []access.SiteOption{
		access.WithStore(repo),
		access.WithEventQueue(cfg.EventQueue),
		access.WithMetricsRegisterer(registry),
	}
	if cfg.AuditLog {
		opts = append(opts, access.WithActivitySink(activitymap.Sink(func(_ context.Context, rec activitymap.Normalized) error {
			site.Logger("access.activity").Info("activity",
				"verb", rec.Verb,
				"actor_id", rec.ActorID,
				"object_type", rec.ObjectType,
				"object_id", rec.ObjectID,
				"metadata", rec.Metadata,
			)
			return nil
		})))
	}
	site = access.NewSite(opts...)
	site.Start()
	defer site.Close()

	var module access.Module = defaultRoles
	if cfg.Manifest != "" {
		m, err := access.LoadManifest(cfg.Manifest)
		if err != nil {
			return err
		}
		module = m
	}
	if err := site.Install(ctx, module); err != nil {
		return err
	}
	if err := site.LoadPermissions(ctx); err != nil {
		return err
	}

	switch command {
	case "setup-roles":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		force := fs.Bool("force", false, "update existing role records")
		updateUsers := fs.Bool("update-users", false, "reconcile staff flags afterwards")
		dryRun := fs.Bool("dry-run", false, "report without writing")
		_ = fs.Parse(args)

		res, err := site.SetupRoles().Execute(ctx, access.SetupRolesMessage{
			Force:       *force,
			UpdateUsers: *updateUsers,
			DryRun:      *dryRun,
		})
		fmt.Println(print.MaybePrettyJSON(res))
		return err

	case "setup-permissions":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		file := fs.String("file", "", "YAML or JSON file mapping roles to permissions")
		role := fs.String("role", "", "only import this role")
		dryRun := fs.Bool("dry-run", false, "report without writing")
		_ = fs.Parse(args)

		data, err := readPermissions(*file)
		if err != nil {
			return err
		}
		report, err := site.SetupRolePermissions().Execute(ctx, access.SetupRolePermissionsMessage{
			Role:   *role,
			Data:   data,
			DryRun: *dryRun,
		})
		fmt.Println(print.MaybePrettyJSON(report))
		return err

	case "sync-staff":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "report without writing")
		_ = fs.Parse(args)

		res, err := site.SyncStaffStatus().Execute(ctx, access.SyncStaffStatusMessage{DryRun: *dryRun})
		for _, c := range res.Changes {
			fmt.Printf("User %s (%s): is_staff %t -> %t\n", c.Username, c.Role, c.From, c.To)
		}
		fmt.Printf("examined=%d updated=%d failed=%d dry_run=%t\n", res.Examined, res.Updated, res.Failed, res.DryRun)
		return err

	case "roles":
		fmt.Println(print.MaybePrettyJSON(site.Roles.Roles()))
		return nil

	case "claims":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		principal := fs.String("principal", "", "principal id")
		_ = fs.Parse(args)
		return printClaims(ctx, site, *principal)

	case "schedule":
		return schedule(ctx, cfg, site, registry)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func schedule(ctx context.Context, cfg *Config, site *access.Site, registry *prometheus.Registry) error {
	scheduler := access.NewStaffSyncScheduler(site.SyncStaffStatus(),
		access.WithSchedulerTimeout(cfg.SyncTimeout),
		access.WithSchedulerLogger(site.Logger("access.scheduler")),
	)
	if err := scheduler.Schedule(cfg.SyncSchedule); err != nil {
		return err
	}
	scheduler.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	return scheduler.Stop(shutdown)
}

func printClaims(ctx context.Context, site *access.Site, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("--principal: %w", err)
	}
	p, err := site.Principals.Get(ctx, id)
	if err != nil {
		return err
	}

	ctx = access.WithPrincipalContext(ctx, p)
	claims, err := featuregateadapter.NewClaimsProvider(site).ClaimsFromContext(ctx)
	if err != nil {
		return err
	}
	perms, err := featuregateadapter.NewPermissionProvider(site).Permissions(ctx, claims)
	if err != nil {
		return err
	}
	actor, _ := featuregateadapter.ActorRefFromContext(ctx)

	fmt.Println(print.MaybePrettyJSON(map[string]any{
		"actor":       actor,
		"claims":      claims,
		"permissions": perms,
	}))
	return nil
}

func readPermissions(path string) (map[string][]string, error) {
	if path == "" {
		return nil, errors.New("--file is required")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data := map[string][]string{}
	if err := yaml.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}
