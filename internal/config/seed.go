package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed lists sources and categories that must exist before the first run.
type Seed struct {
	Sources    []SeedSource   `yaml:"sources"`
	Categories []SeedCategory `yaml:"categories"`
}

type SeedSource struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type SeedCategory struct {
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadSeed reads a seed file; an empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if strings.TrimSpace(path) == "" {
		return &Seed{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer f.Close()
	return ParseSeed(f)
}

func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	for i, s := range seed.Sources {
		if s.Slug == "" || s.URL == "" {
			return nil, fmt.Errorf("seed source #%d: slug and url are required", i+1)
		}
		if s.Name == "" {
			seed.Sources[i].Name = s.Slug
		}
	}
	for i, c := range seed.Categories {
		if c.Slug == "" {
			return nil, fmt.Errorf("seed category #%d: slug is required", i+1)
		}
		if c.Name == "" {
			seed.Categories[i].Name = c.Slug
		}
	}
	return &seed, nil
}
