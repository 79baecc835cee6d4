package keys

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Source priorities. A lower number wins when the same key shows up twice.
const (
	PriorityEnvironment = 1
	PriorityDotEnv      = 2
	PriorityConfigJSON  = 3
)

// maxNumberedKeys bounds the NAME_2 ... NAME_n variants we look for
const maxNumberedKeys = 9

// Source loads API keys from one place
type Source interface {
	Name() string
	Priority() int
	Load() (map[Service][]string, error)
}

// EnvSource reads keys from the process environment
type EnvSource struct {
	// Getenv defaults to os.LookupEnv
	Getenv func(string) (string, bool)
}

func (e EnvSource) Name() string  { return "environment" }
func (e EnvSource) Priority() int { return PriorityEnvironment }

func (e EnvSource) Load() (map[Service][]string, error) {
	lookup := e.Getenv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return collect(lookup), nil
}

// DotEnvSource reads keys from a .env file
type DotEnvSource struct {
	Path string
}

func (d DotEnvSource) Name() string  { return d.Path }
func (d DotEnvSource) Priority() int { return PriorityDotEnv }

func (d DotEnvSource) Load() (map[Service][]string, error) {
	v, err := readFile(d.Path, "env")
	if err != nil || v == nil {
		return nil, err
	}
	return collect(settingsLookup(v.AllSettings())), nil
}

// JSONSource reads keys from a config.json file. Keys may be given per
// service under "api_keys", as a string or a list of strings, or as
// top-level entries named after the environment variables.
type JSONSource struct {
	Path string
}

func (j JSONSource) Name() string  { return j.Path }
func (j JSONSource) Priority() int { return PriorityConfigJSON }

func (j JSONSource) Load() (map[Service][]string, error) {
	v, err := readFile(j.Path, "json")
	if err != nil || v == nil {
		return nil, err
	}

	settings := v.AllSettings()
	found := collect(settingsLookup(settings))

	if section, ok := settings["api_keys"].(map[string]interface{}); ok {
		for name, raw := range section {
			s := Service(strings.ToLower(name))
			if _, known := registry[s]; !known {
				continue
			}
			for _, key := range valuesOf(raw) {
				found[s] = appendUnique(found[s], key)
			}
		}
	}

	return found, nil
}

// readFile loads a config file through viper. A missing file yields nil.
func readFile(path, configType string) (*viper.Viper, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return v, nil
}

// settingsLookup adapts viper settings (whose keys viper lower-cases) to an
// environment-style lookup function
func settingsLookup(settings map[string]interface{}) func(string) (string, bool) {
	return func(name string) (string, bool) {
		raw, ok := settings[strings.ToLower(name)]
		if !ok {
			return "", false
		}
		values := valuesOf(raw)
		if len(values) == 0 {
			return "", false
		}
		return strings.Join(values, ","), true
	}
}

// collect gathers every service's keys through lookup, honouring
// comma-separated values and numbered NAME_2 ... NAME_9 variants
func collect(lookup func(string) (string, bool)) map[Service][]string {
	found := make(map[Service][]string)

	for _, info := range registry {
		for _, envVar := range info.EnvVars {
			for _, name := range numberedNames(envVar) {
				raw, ok := lookup(name)
				if !ok {
					continue
				}
				ids := splitValues(raw)
				if info.SecretVar == "" {
					for _, id := range ids {
						found[info.Service] = appendUnique(found[info.Service], id)
					}
					continue
				}

				secretName := info.SecretVar + strings.TrimPrefix(name, envVar)
				secretRaw, ok := lookup(secretName)
				if !ok {
					continue
				}
				secrets := splitValues(secretRaw)
				for i := 0; i < len(ids) && i < len(secrets); i++ {
					found[info.Service] = appendUnique(found[info.Service], ids[i]+":"+secrets[i])
				}
			}
		}
	}

	return found
}

func numberedNames(base string) []string {
	names := []string{base}
	for i := 2; i <= maxNumberedKeys; i++ {
		names = append(names, base+"_"+strconv.Itoa(i))
	}
	return names
}

func valuesOf(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return splitValues(v)
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, splitValues(s)...)
			}
		}
		return out
	case []string:
		var out []string
		for _, s := range v {
			out = append(out, splitValues(s)...)
		}
		return out
	}
	return nil
}

func splitValues(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" && !isPlaceholder(part) {
			out = append(out, part)
		}
	}
	return out
}

// isPlaceholder catches the template values people forget to replace
func isPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "your_") || strings.HasPrefix(lower, "your-") ||
		strings.Contains(lower, "_here") || lower == "changeme" || lower == "xxx"
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
