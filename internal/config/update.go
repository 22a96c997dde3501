package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/vector/internal/errors"
	"gopkg.in/yaml.v3"
)

// SaveHost rewrites the host and pmcd keys of the config file at configPath.
// It preserves the existing YAML structure and comments. A missing file is
// created holding just those keys.
func SaveHost(configPath, host, pmcd string) error {
	var root yaml.Node

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	case err != nil:
		return fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		if root.Kind == 0 {
			// Empty file.
			root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
		}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid YAML document structure")
	}
	docNode := root.Content[0]
	if docNode.Kind != yaml.MappingNode {
		return fmt.Errorf("expected mapping at document root")
	}

	setMapScalar(docNode, "host", host)
	if pmcd != "" {
		setMapScalar(docNode, "pmcd", pmcd)
	}

	return writeNode(configPath, &root)
}

// WriteDefault writes a starter config to path. An existing file is left
// alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrConfig,
				"Config file already exists: "+path,
				"Pass --force to overwrite it")
		}
	}

	cfg := DefaultConfig()
	cfg.Metrics = []MetricConfig{
		{Name: "kernel.all.load", Kind: "simple"},
		{Name: "disk.dev.total", Kind: "cumulative"},
		{Name: "mem.util.used", Kind: "converted", Scale: 1.0 / 1024},
		{Name: "mem.util.free", Kind: "converted", Scale: 1.0 / 1024},
	}
	cfg.Derived = []DerivedConfig{
		{Name: "mem.util.pct", Op: "percent", Inputs: []string{"mem.util.used", "mem.util.free"}},
	}

	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	node.HeadComment = "vector configuration. Environment variables prefixed with VECTOR_ override these keys."

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeNode(path, &node)
}

// FileStore persists host changes to a config file.
type FileStore struct {
	Path string
}

// SaveHost implements dashboard.HostStore.
func (s FileStore) SaveHost(host, pmcd string) error {
	if s.Path == "" {
		return nil
	}
	return SaveHost(s.Path, host, pmcd)
}

func writeNode(path string, node *yaml.Node) error {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(node); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setMapScalar sets key to a string scalar, adding the key when absent.
func setMapScalar(node *yaml.Node, key, value string) {
	if existing := findMapValue(node, key); existing != nil {
		existing.Kind = yaml.ScalarNode
		existing.Tag = "!!str"
		existing.Value = value
		existing.Content = nil
		return
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}
