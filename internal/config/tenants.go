package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TenantEntry is one tenant stanza from the tenants file. The client secret
// never leaves this package type; it is not persisted to the catalog.
type TenantEntry struct {
	Name         string `yaml:"name"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// TenantsFile is the top-level shape of tenants.yaml.
type TenantsFile struct {
	Tenants []TenantEntry `yaml:"tenants"`
}

// LoadTenants parses the tenants file at path and validates each entry.
func LoadTenants(path string) ([]TenantEntry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("tenants file path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}

	var file TenantsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse tenants file %s: %w", path, err)
	}
	if len(file.Tenants) == 0 {
		return nil, fmt.Errorf("tenants file %s defines no tenants", path)
	}

	seen := map[string]struct{}{}
	for i := range file.Tenants {
		entry := &file.Tenants[i]
		entry.TenantID = strings.TrimSpace(entry.TenantID)
		entry.ClientID = strings.TrimSpace(entry.ClientID)
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.TenantID == "" {
			return nil, fmt.Errorf("tenants file %s: entry %d is missing tenant_id", path, i+1)
		}
		if entry.ClientID == "" {
			return nil, fmt.Errorf("tenants file %s: tenant %s is missing client_id", path, entry.TenantID)
		}
		if entry.Name == "" {
			entry.Name = entry.TenantID
		}
		if _, dup := seen[entry.TenantID]; dup {
			return nil, fmt.Errorf("tenants file %s: duplicate tenant_id %s", path, entry.TenantID)
		}
		seen[entry.TenantID] = struct{}{}
	}
	return file.Tenants, nil
}
