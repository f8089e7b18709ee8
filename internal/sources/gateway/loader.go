// Package gateway reads dispatch configuration records from a YAML file.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

var templateVar = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Loader reads the configuration file on every call, so edits are picked
// up without a restart.
type Loader struct {
	filePath string
	lookup   func(string) (string, bool)
}

// NewLoader creates a new gateway configuration loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
		lookup:   os.LookupEnv,
	}
}

// Name identifies the source in logs and on /infra.
func (l *Loader) Name() string { return "yaml:" + l.filePath }

// Load reads and parses the configuration file
func (l *Loader) Load() (*File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway file: %w", err)
	}

	data = l.expandTemplateVariables(data)

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse gateway yaml: %w", err)
	}

	return &file, nil
}

// ActiveConfig returns the most recently updated enabled record for
// apiType, or nil when there is none. A missing file counts as empty.
func (l *Loader) ActiveConfig(_ context.Context, apiType string) (*domain.ConfigRecord, error) {
	file, err := l.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var best *Entry
	for i := range file.Configs {
		e := &file.Configs[i]
		if !e.Enabled || !strings.EqualFold(e.APIType, apiType) {
			continue
		}
		if best == nil || e.UpdatedAt.After(best.UpdatedAt) {
			best = e
		}
	}

	if best == nil {
		return nil, nil
	}

	return &domain.ConfigRecord{
		APIType:   best.APIType,
		ServerURL: strings.TrimSpace(best.ServerURL),
		Instance:  strings.TrimSpace(best.Instance),
		UpdatedAt: best.UpdatedAt,
	}, nil
}

// Ping checks the file is readable and well formed.
func (l *Loader) Ping(_ context.Context) error {
	_, err := l.Load()
	return err
}

// expandTemplateVariables substitutes {{VAR}} with the environment value
// Example: server_url: https://{{EVOLUTION_HOST}} -> server_url: https://gw.example.com
// Unset variables expand to the empty string.
func (l *Loader) expandTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAllFunc(data, func(m []byte) []byte {
		name := templateVar.FindSubmatch(m)[1]
		val, _ := l.lookup(string(name))
		return []byte(val)
	})
}
