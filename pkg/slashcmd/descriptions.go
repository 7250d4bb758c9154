package slashcmd

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cexll/agentexec-go/pkg/logs"
)

// Plugin identifies an installed agent plugin whose command files contribute
// namespaced descriptions ("pluginname:command").
type Plugin struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type frontmatter struct {
	Description string `yaml:"description"`
}

// ExtractDescription pulls the description field out of a markdown file's
// YAML frontmatter. Returns empty when the file has no frontmatter or no
// description.
func ExtractDescription(content string) string {
	rest, ok := strings.CutPrefix(content, "---")
	if !ok {
		return ""
	}
	end := strings.Index(rest, "---")
	if end < 0 {
		return ""
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return ""
	}
	return strings.TrimSpace(fm.Description)
}

// DiscoverDescriptions scans the command and skill directories that feed an
// agent's slash commands, keyed by command name. Later sources win: project
// first, then the user-global directory, then plugins (namespaced, so plugin
// keys rarely collide).
func DiscoverDescriptions(projectDir string, plugins []Plugin, logger logs.Logger) map[string]string {
	logger = logs.OrNop(logger)
	descriptions := make(map[string]string)

	merge := func(m map[string]string) {
		for k, v := range m {
			descriptions[k] = v
		}
	}

	merge(scanBasePath(filepath.Join(projectDir, ".claude"), "", logger))
	if home, err := os.UserHomeDir(); err == nil {
		merge(scanBasePath(filepath.Join(home, ".claude"), "", logger))
	}
	for _, plugin := range plugins {
		merge(scanBasePath(plugin.Path, plugin.Name, logger))
		merge(scanBasePath(filepath.Join(plugin.Path, ".claude"), plugin.Name, logger))
	}
	return descriptions
}

// scanBasePath reads <base>/commands/*.md and <base>/skills/*/SKILL.md.
func scanBasePath(base, prefix string, logger logs.Logger) map[string]string {
	result := make(map[string]string)

	entries, err := os.ReadDir(filepath.Join(base, "commands"))
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), ".md")
			path := filepath.Join(base, "commands", entry.Name())
			if desc := readDescription(path, logger); desc != "" {
				result[makeKey(prefix, name)] = desc
			}
		}
	}

	entries, err = os.ReadDir(filepath.Join(base, "skills"))
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(base, "skills", entry.Name(), "SKILL.md")
			if desc := readDescription(path, logger); desc != "" {
				result[makeKey(prefix, entry.Name())] = desc
			}
		}
	}
	return result
}

func readDescription(path string, logger logs.Logger) string {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("slashcmd: read %s: %v", path, err)
		}
		return ""
	}
	return ExtractDescription(string(content))
}

func makeKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}
