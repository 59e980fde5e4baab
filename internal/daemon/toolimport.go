// ABOUTME: Loads tool definitions from a TOML manifest for the tool_import action
// ABOUTME: Declarative descriptors only; nothing from the manifest is ever executed

package daemon

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/session"
)

// manifest is the top-level shape of a tool manifest file.
type manifest struct {
	Tool []manifestTool `toml:"tool"`
}

// manifestTool is one declared tool. Name, description, and parameters are
// required; entries missing any of them are skipped and reported.
type manifestTool struct {
	Name          string         `toml:"name"`
	Description   string         `toml:"description"`
	Parameters    map[string]any `toml:"parameters"`
	NeedsApproval bool           `toml:"needs_approval"`
	MockResponse  string         `toml:"mock_response"`
}

// importTools reads a manifest and registers each valid tool, returning the
// imported names and the skipped entries with reasons.
func (d *Daemon) importTools(path string) (*protocol.ToolImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	result := &protocol.ToolImportResult{
		Imported: []string{},
		Skipped:  []protocol.SkippedTool{},
	}

	for i, t := range m.Tool {
		if reason := validateManifestTool(t); reason != "" {
			name := t.Name
			if name == "" {
				name = fmt.Sprintf("entry %d", i+1)
			}
			result.Skipped = append(result.Skipped, protocol.SkippedTool{Name: name, Reason: reason})
			d.logger.Warn("skipping invalid manifest tool", "name", name, "reason", reason)
			continue
		}

		def := session.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
		if t.NeedsApproval {
			def.NeedsApproval = session.AlwaysApprove
		}
		if err := d.session.AddTool(def); err != nil {
			result.Skipped = append(result.Skipped, protocol.SkippedTool{Name: t.Name, Reason: err.Error()})
			continue
		}
		if t.MockResponse != "" {
			if err := d.session.SetMockResponse(t.Name, t.MockResponse); err != nil {
				return nil, err
			}
		}
		result.Imported = append(result.Imported, t.Name)
	}

	d.logger.Info("tool manifest imported",
		"path", path,
		"imported", len(result.Imported),
		"skipped", len(result.Skipped))
	return result, nil
}

func validateManifestTool(t manifestTool) string {
	if t.Name == "" {
		return "missing name"
	}
	if t.Description == "" {
		return "missing description"
	}
	if len(t.Parameters) == 0 {
		return "missing parameters"
	}
	return ""
}
