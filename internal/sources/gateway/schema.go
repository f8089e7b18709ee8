package gateway

import "time"

// File is the top-level structure of the gateway configuration file.
//
//	configs:
//	  - api_type: evolution
//	    server_url: https://{{EVOLUTION_HOST}}
//	    instance_name: sales
//	    enabled: true
//	    updated_at: 2026-01-10T09:00:00Z
type File struct {
	Configs []Entry `yaml:"configs"`
}

// Entry is one configuration record.
type Entry struct {
	APIType   string    `yaml:"api_type"`
	ServerURL string    `yaml:"server_url"`
	Instance  string    `yaml:"instance_name"`
	Enabled   bool      `yaml:"enabled"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}
