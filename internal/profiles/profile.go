// Package profiles defines launcher profile schemas and helpers.
//
// A profile is a named TOML file that pins a compiler executable,
// install root, extra arguments, and environment overrides for runs.
package profiles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Amchestnut/KotlinRunnerX/internal/launcher"
)

// Profile defines a profile file model.
type Profile struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description"`
	Executable  string            `toml:"executable"`
	InstallRoot string            `toml:"install_root"`
	ExtraArgs   []string          `toml:"extra_args"`
	Env         map[string]string `toml:"env"`
	Source      string            `toml:"-"`
}

// EnvList renders the environment overrides as KEY=VALUE pairs in a
// stable order.
func (p *Profile) EnvList() []string {
	if len(p.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, p.Env[k]))
	}
	return pairs
}

// Apply layers the profile onto launcher options. Profile fields win
// over the base options when set.
func (p *Profile) Apply(opts launcher.Options) launcher.Options {
	if p.Executable != "" {
		opts.Executable = p.Executable
	}
	if p.InstallRoot != "" {
		opts.InstallRoot = p.InstallRoot
	}
	if len(p.ExtraArgs) > 0 {
		opts.ExtraArgs = append(append([]string{}, opts.ExtraArgs...), p.ExtraArgs...)
	}
	if env := p.EnvList(); len(env) > 0 {
		opts.Env = append(append([]string{}, opts.Env...), env...)
	}
	return opts
}

// Validate checks the profile for structural problems.
func (p *Profile) Validate() error {
	list := &ErrorList{}

	if strings.TrimSpace(p.Name) == "" {
		list.Add(ProfileError{
			Code:    ErrCodeMissingField,
			Message: "profile name is required",
			Path:    p.Source,
			Field:   "name",
		})
	}

	for _, arg := range p.ExtraArgs {
		if strings.TrimSpace(arg) == "" {
			list.Add(ProfileError{
				Code:    ErrCodeInvalidField,
				Message: "extra_args entries must not be empty",
				Path:    p.Source,
				Field:   "extra_args",
			})
			break
		}
	}

	for key := range p.Env {
		if key == "" || strings.Contains(key, "=") {
			list.Add(ProfileError{
				Code:    ErrCodeInvalidField,
				Message: fmt.Sprintf("invalid environment key %q", key),
				Path:    p.Source,
				Field:   "env",
			})
		}
	}

	if list.Empty() {
		return nil
	}
	return list
}
