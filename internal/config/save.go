package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultConfigTemplate = `# spmbatch configuration
# Remove or adjust any section; missing keys fall back to defaults.

# log_file: /tmp/spmbatch.log

registry:
  refresh_interval: 1s
  change_check_interval: 500ms

macro:
  # path: /path/to/processing.log
  auto_reload: true
  reload_debounce: 500ms

processing:
  default_palette: Gray
  crop_fraction: 0.25
  crop_create_new: false
  crop_keep_offsets: false

export:
  dir: .
  extension: .gwy

history:
  enabled: true

tracing:
  enabled: false
  exporter: file
  sample_rate: 1.0
`

// WriteDefaultConfig writes a commented starter config to path. It refuses
// to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config path: %w", err)
	}
	return writeAtomic(path, []byte(defaultConfigTemplate))
}

// SaveMacroPath updates macro.path in the config file so the next session
// reloads the same processing log. Comments and formatting in other
// sections are preserved by editing the yaml.Node tree in place.
func SaveMacroPath(configPath, macroPath string) error {
	return saveScalar(configPath, []string{"macro", "path"}, macroPath)
}

// SaveExportDir updates export.dir in the config file.
func SaveExportDir(configPath, dir string) error {
	return saveScalar(configPath, []string{"export", "dir"}, dir)
}

// saveScalar sets one nested scalar key in the config file, creating
// intermediate mappings as needed.
func saveScalar(configPath string, keys []string, value string) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}

	node := doc.Content[0]
	for _, key := range keys[:len(keys)-1] {
		node = childMapping(node, key)
	}
	setScalar(node, keys[len(keys)-1], value)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// childMapping finds or appends the mapping stored under key.
func childMapping(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == key {
			if node.Content[i+1].Kind != yaml.MappingNode {
				node.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
			}
			return node.Content[i+1]
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		child,
	)
	return child
}

// setScalar replaces or appends a scalar value under key.
func setScalar(node *yaml.Node, key, value string) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == key {
			node.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Value: value}
			return
		}
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".spmbatch.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
