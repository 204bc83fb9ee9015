package registry

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PlatformKind distinguishes how an automation is invoked.
type PlatformKind int

const (
	// KindWebhook targets the configured automation host; Target is a path.
	KindWebhook PlatformKind = iota
	// KindExternal targets a third-party webhook; Target is a full URL.
	KindExternal
	// KindScript runs a local script; Target is the script name.
	KindScript
)

func (k PlatformKind) String() string {
	switch k {
	case KindWebhook:
		return "webhook"
	case KindExternal:
		return "external"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// Platform is the dispatch target, resolved once at load time so the
// dispatcher never re-parses raw descriptor fields.
type Platform struct {
	Kind   PlatformKind
	Target string
}

// Automation describes one registered action. Immutable after load.
type Automation struct {
	Name        string
	Description string
	Category    string
	Platform    Platform
	Schema      *Schema // nil = no response validation
}

// rawAutomation is the YAML shape of one registry entry.
type rawAutomation struct {
	Name             string  `yaml:"name"`
	Description      string  `yaml:"description"`
	Platform         string  `yaml:"platform"`
	WebhookPath      string  `yaml:"webhook_path,omitempty"`
	WebhookURL       string  `yaml:"webhook_url,omitempty"`
	ScriptName       string  `yaml:"script_name,omitempty"`
	Category         string  `yaml:"category,omitempty"`
	ExpectedResponse *Schema `yaml:"expected_response,omitempty"`
}

// Registry is the read-only set of automations for a session.
type Registry struct {
	byName map[string]*Automation
	order  []string
}

// Load reads the registry from path. A missing file yields an empty
// registry so the rest of the system degrades to "no automations
// available" instead of failing startup.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from a YAML sequence of automation entries.
func Parse(data []byte) (*Registry, error) {
	var raw []rawAutomation
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}

	r := Empty()
	for i, entry := range raw {
		if entry.Name == "" {
			return nil, fmt.Errorf("registry entry %d: name is required", i)
		}
		if _, exists := r.byName[entry.Name]; exists {
			return nil, fmt.Errorf("registry entry %q declared twice", entry.Name)
		}
		platform, err := resolvePlatform(entry)
		if err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", entry.Name, err)
		}
		a := &Automation{
			Name:        entry.Name,
			Description: entry.Description,
			Category:    entry.Category,
			Platform:    platform,
			Schema:      entry.ExpectedResponse,
		}
		r.byName[a.Name] = a
		r.order = append(r.order, a.Name)
	}
	return r, nil
}

// Empty returns a registry with no automations.
func Empty() *Registry {
	return &Registry{byName: make(map[string]*Automation)}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// expandEnv substitutes ${VAR} references so endpoints can carry
// secrets without writing them into the registry file. Unset variables
// are left as-is.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func resolvePlatform(entry rawAutomation) (Platform, error) {
	switch entry.Platform {
	case "webhook", "":
		return Platform{Kind: KindWebhook, Target: entry.WebhookPath}, nil
	case "external":
		return Platform{Kind: KindExternal, Target: expandEnv(entry.WebhookURL)}, nil
	case "script":
		return Platform{Kind: KindScript, Target: entry.ScriptName}, nil
	default:
		return Platform{}, fmt.Errorf("unsupported platform %q", entry.Platform)
	}
}

// Resolve looks up an automation by name.
func (r *Registry) Resolve(name string) (*Automation, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// List returns automations in declaration order.
func (r *Registry) List() []*Automation {
	out := make([]*Automation, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns automation names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int { return len(r.order) }
