package profiles

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LoadProfile reads and validates a single profile from disk.
func LoadProfile(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	p, err := parseProfile(data)
	if err != nil {
		return nil, wrapParseError(path, err)
	}
	p.Source = path
	if p.Name == "" {
		// A file with no explicit name is named after itself.
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProfilesFromDir loads all profiles from a directory, sorted by
// name. A missing directory yields an empty set.
func LoadProfilesFromDir(dir string) ([]*Profile, error) {
	if strings.TrimSpace(dir) == "" {
		return []*Profile{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Profile{}, nil
		}
		return nil, fmt.Errorf("read profiles dir %s: %w", dir, err)
	}

	byName := make(map[string]*Profile)
	result := make([]*Profile, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		path := filepath.Join(dir, name)
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		if prior, exists := byName[p.Name]; exists {
			list := &ErrorList{}
			list.Add(ProfileError{
				Code:    ErrCodeDuplicate,
				Message: fmt.Sprintf("profile %q already defined in %s", p.Name, prior.Source),
				Path:    path,
				Field:   "name",
			})
			return nil, list
		}
		byName[p.Name] = p
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// Resolve finds a profile by name.
func Resolve(profiles []*Profile, name string) (*Profile, error) {
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}

	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	msg := fmt.Sprintf("profile %q not found", name)
	if len(names) > 0 {
		msg = fmt.Sprintf("%s (available: %s)", msg, strings.Join(names, ", "))
	}
	list := &ErrorList{}
	list.Add(ProfileError{Code: ErrCodeNotFound, Message: msg})
	return nil, list
}

func parseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func wrapParseError(path string, err error) error {
	list := &ErrorList{}

	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		for _, decodeErr := range strictErr.Errors {
			line, column := decodeErr.Position()
			list.Add(ProfileError{
				Code:    ErrCodeParse,
				Message: decodeErr.Error(),
				Path:    path,
				Line:    line,
				Column:  column,
				Field:   strings.Join(decodeErr.Key(), "."),
			})
		}
		return list
	}

	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		line, column := decodeErr.Position()
		list.Add(ProfileError{
			Code:    ErrCodeParse,
			Message: decodeErr.Error(),
			Path:    path,
			Line:    line,
			Column:  column,
		})
		return list
	}

	list.Add(ProfileError{
		Code:    ErrCodeParse,
		Message: err.Error(),
		Path:    path,
	})
	return list
}
