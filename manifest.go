package access

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Manifest is the declarative form of a feature module. It is loaded from
// YAML and installed like any other Module.
//
//	name: schools
//	roles:
//	  default: student
//	  items:
//	    - student
//	    - [instructor, Instructor]
//	    - {name: admin, display_name: Administrator, is_staff: true}
//	pages:
//	  signup: {enabled: false}
//	username: {label: Student ID, placeholder: Enter your student ID}
//	navigation:
//	  - {name: Courses, target: "courses:list", order: 10}
//	home: "dashboard:index"
type Manifest struct {
	ModuleName  string                    `yaml:"name" json:"name"`
	Roles       ManifestRoles             `yaml:"roles" json:"roles"`
	Pages       map[string]map[string]any `yaml:"pages" json:"pages"`
	Global      map[string]any            `yaml:"global" json:"global"`
	Username    ManifestUsername          `yaml:"username" json:"username"`
	Navigation  []ManifestNavItem         `yaml:"navigation" json:"navigation"`
	Home        string                    `yaml:"home" json:"home"`
	Routes      map[string]string         `yaml:"routes" json:"routes"`
	Permissions map[string][]string       `yaml:"permissions" json:"permissions"`
}

// ManifestRoles declares the role set. An empty item list leaves the roles
// of other modules alone.
type ManifestRoles struct {
	Default string `yaml:"default" json:"default"`
	Items   []any  `yaml:"items" json:"items"`
}

type ManifestUsername struct {
	Label       string `yaml:"label" json:"label"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
}

type ManifestNavItem struct {
	Name     string         `yaml:"name" json:"name"`
	Target   string         `yaml:"target" json:"target"`
	Order    int            `yaml:"order" json:"order"`
	Fragment string         `yaml:"fragment" json:"fragment"`
	Type     string         `yaml:"type" json:"type"`
	Extra    map[string]any `yaml:"extra" json:"extra"`
}

func (n ManifestNavItem) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&n.Target, validation.Required),
	)
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryNotFound, "could not open manifest").
			WithMetadata(map[string]any{"path": path})
	}
	defer f.Close()
	return DecodeManifest(f)
}

// DecodeManifest parses and validates a YAML manifest.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, invalidManifest(err, "could not parse manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the manifest shape. Role and page semantics are checked
// when the manifest is installed.
func (m Manifest) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.ModuleName, validation.Required, validation.Length(1, 100)),
		validation.Field(&m.Pages, validation.By(validPageNames)),
		validation.Field(&m.Navigation),
	)
	if err == nil {
		return nil
	}
	return invalidManifest(err, "invalid site manifest")
}

// invalidManifest joins the sentinel with the decoder or validation error so
// callers can match either.
func invalidManifest(err error, reason string) error {
	return errors.Join(newError(ErrInvalidManifest, map[string]any{
		"reason": reason,
		"cause":  err.Error(),
	}), err)
}

func validPageNames(value any) error {
	pages, _ := value.(map[string]map[string]any)
	var bad []string
	for name := range pages {
		if _, ok := ParsePageName(name); !ok {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("unknown pages: %s", strings.Join(bad, ", "))
	}
	return nil
}

func (m *Manifest) Name() string { return m.ModuleName }

// Register applies the manifest to site.
func (m *Manifest) Register(site *Site) error {
	if len(m.Roles.Items) > 0 {
		roles, err := NormalizeRoles(m.Roles.Items)
		if err != nil {
			return err
		}
		if err := site.Roles.RegisterRoles(roles, m.Roles.Default); err != nil {
			return err
		}
	}

	if len(m.Pages) > 0 {
		pages := make(map[PageName]ConfigMap, len(m.Pages))
		for name, raw := range m.Pages {
			cfg, err := ConfigMapOf(raw)
			if err != nil {
				return err
			}
			pages[PageName(name)] = cfg
		}
		if err := site.Pages.BulkConfigure(pages); err != nil {
			return err
		}
	}

	if len(m.Global) > 0 {
		cfg, err := ConfigMapOf(m.Global)
		if err != nil {
			return err
		}
		site.Pages.SetGlobalConfig(cfg)
	}
	site.Pages.ConfigureUsernameField(m.Username.Label, m.Username.Placeholder)

	if len(m.Routes) > 0 {
		table, ok := site.Routes.(*RouteTable)
		if !ok {
			return newError(ErrInvalidManifest, map[string]any{
				"module": m.ModuleName,
				"reason": "manifest routes need a route table resolver",
			})
		}
		for name, path := range m.Routes {
			table.Add(name, path)
		}
	}

	for _, item := range m.Navigation {
		opts := []NavOption{WithOrder(item.Order), WithFragment(item.Fragment), WithType(item.Type)}
		if len(item.Extra) > 0 {
			extra, err := ConfigMapOf(item.Extra)
			if err != nil {
				return err
			}
			opts = append(opts, WithExtra(extra))
		}
		site.Navigation.Register(item.Name, item.Target, opts...)
	}

	if m.Home != "" {
		site.Home.RegisterHomeURL(m.Home, m.ModuleName)
	}

	if len(m.Permissions) > 0 {
		report := site.Permissions.Import(m.Permissions)
		for _, r := range report.Rejects {
			site.logger.Warn("manifest permission rejected",
				"module", m.ModuleName,
				"role", r.Role,
				"permission", r.Permission,
				"error", r.Err,
			)
		}
	}
	return nil
}
