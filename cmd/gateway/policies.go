package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"access-gateway/middleware/access"
	"access-gateway/middleware/access/domain"
)

// policyFile é o formato de ACCESS_POLICY_FILE:
//
//	routes:
//	  - path: /orders
//	    spikeArrest: {allow: 20, timeUnit: second}
//	    quota: {identifier: orders, timeUnit: minute, allow: 600, syncInterval: 5s}
//	maps:
//	  users: {scope: api, api: orders}
type policyFile struct {
	Routes []routePolicy               `yaml:"routes"`
	Maps   map[string]access.MapConfig `yaml:"maps"`
}

type routePolicy struct {
	Path        string                    `yaml:"path"`
	Quota       *domain.QuotaPolicy       `yaml:"quota"`
	SpikeArrest *domain.SpikeArrestPolicy `yaml:"spikeArrest"`
}

func loadPolicies(path string) (policyFile, error) {
	var f policyFile
	if path == "" {
		return f, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return f, f.validate()
}

func (f policyFile) validate() error {
	seen := make(map[string]bool, len(f.Routes))
	for i, r := range f.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("routes[%d]: path %q must start with /", i, r.Path)
		}
		p := normalizePath(r.Path)
		if seen[p] {
			return fmt.Errorf("routes[%d]: duplicate path %q", i, r.Path)
		}
		seen[p] = true
		if r.Quota == nil && r.SpikeArrest == nil {
			return fmt.Errorf("routes[%d]: path %q has no policy", i, r.Path)
		}
	}
	for name := range f.Maps {
		if name == "" {
			return fmt.Errorf("maps: empty map name")
		}
	}
	return nil
}

func normalizePath(p string) string {
	if p == "/" {
		return p
	}
	return strings.TrimRight(p, "/")
}
