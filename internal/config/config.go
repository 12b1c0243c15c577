// Package config builds Hydrogen's typed configuration tree from a .env
// file, the process environment, and an optional YAML overlay, in that
// increasing order of priority (SPEC_FULL.md §6a).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	hconfig "github.com/R3E-Network/hydrogen/infrastructure/config"
	"github.com/R3E-Network/hydrogen/infrastructure/logging"
)

// Tree is a node in the configuration tree. Leaves are strings, numbers,
// booleans, or nested maps/slices, matching §6's "tree of typed values".
type Tree map[string]interface{}

var envRefPattern = regexp.MustCompile(`\$\{env\.([A-Za-z_][A-Za-z0-9_]*)\}`)

var bootLogger = logging.NewFromEnv("config")

// Load builds the configuration tree: loads .env (if present, via
// godotenv), then overlays an optional YAML file named by the
// HYDROGEN_CONFIG environment variable, then applies ${env.NAME}
// substitution over every string leaf.
func Load() (Tree, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		bootLogger.WithError(err).Warn("failed to load .env file")
	}

	tree := Tree{}

	if path := strings.TrimSpace(os.Getenv("HYDROGEN_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	substitute(tree)
	return tree, nil
}

// substitute replaces ${env.NAME} references in every string leaf,
// recursing into nested maps and slices.
func substitute(node interface{}) {
	switch v := node.(type) {
	case Tree:
		for k, val := range v {
			v[k] = substituteValue(val)
		}
	case map[string]interface{}:
		for k, val := range v {
			v[k] = substituteValue(val)
		}
	case []interface{}:
		for i, val := range v {
			v[i] = substituteValue(val)
		}
	}
}

func substituteValue(val interface{}) interface{} {
	switch v := val.(type) {
	case string:
		return envRefPattern.ReplaceAllStringFunc(v, func(match string) string {
			sub := envRefPattern.FindStringSubmatch(match)
			if len(sub) != 2 {
				return match
			}
			return os.Getenv(sub[1])
		})
	case Tree, map[string]interface{}, []interface{}:
		substitute(v)
		return v
	default:
		return v
	}
}

// String reads a string leaf by dotted path, e.g. "webserver.bind_addr".
func (t Tree) String(path string, defaultValue string) string {
	v, ok := t.lookup(path)
	if !ok {
		return defaultValue
	}
	s, ok := v.(string)
	if !ok {
		return defaultValue
	}
	return s
}

// Int reads an integer leaf by dotted path, coercing string values the way
// infrastructure/config's helpers do.
func (t Tree) Int(path string, defaultValue int) int {
	v, ok := t.lookup(path)
	if !ok {
		return defaultValue
	}
	switch n := v.(type) {
	case int:
		return n
	case string:
		return hconfig.ParseIntOrDefault(n, defaultValue)
	default:
		return defaultValue
	}
}

// Bool reads a boolean leaf by dotted path.
func (t Tree) Bool(path string, defaultValue bool) bool {
	v, ok := t.lookup(path)
	if !ok {
		return defaultValue
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return hconfig.ParseBoolOrDefault(b, defaultValue)
	default:
		return defaultValue
	}
}

// Duration reads a duration-shaped string leaf by dotted path
// (e.g. "10s", "500ms").
func (t Tree) Duration(path string, defaultValue string) string {
	v, ok := t.lookup(path)
	if !ok {
		return defaultValue
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultValue
}

func (t Tree) lookup(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = t
	for _, part := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case Tree:
		return map[string]interface{}(m), true
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}

// UnknownKeys compares the loaded tree's leaf paths against a schema's known
// dotted leaf paths (exact match) and returns paths present in the tree but never
// declared by any subsystem's schema (§6: logged once at Alert).
func UnknownKeys(t Tree, known map[string]struct{}) []string {
	var unknown []string
	collectLeaves(t, "", func(path string) {
		if _, ok := known[path]; !ok {
			unknown = append(unknown, path)
		}
	})
	return unknown
}

func collectLeaves(node interface{}, prefix string, visit func(string)) {
	m, ok := asMap(node)
	if !ok {
		if prefix != "" {
			visit(prefix)
		}
		return
	}
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if _, isMap := asMap(v); isMap {
			collectLeaves(v, path, visit)
		} else {
			visit(path)
		}
	}
}
