// Package profile holds the portfolio content shown on the home view.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfile []byte

// Profile is the owner's public portfolio.
type Profile struct {
	Name        string     `yaml:"name"`
	Role        string     `yaml:"role"`
	Headline    string     `yaml:"headline"`
	About       string     `yaml:"about"`
	Email       string     `yaml:"email"`
	AskTemplate string     `yaml:"ask_template"`
	Projects    []Project  `yaml:"projects"`
	Research    []Paper    `yaml:"research"`
	Skills      []SkillSet `yaml:"skills"`
}

type Project struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	URL         string   `yaml:"url,omitempty"`
}

type Paper struct {
	Title   string `yaml:"title"`
	Journal string `yaml:"journal"`
	Date    string `yaml:"date"`
	URL     string `yaml:"url"`
}

type SkillSet struct {
	Category string   `yaml:"category"`
	Items    []string `yaml:"items"`
}

// Default returns the embedded profile.
func Default() (*Profile, error) {
	return Parse(defaultProfile)
}

// Load reads a profile from path, or the embedded one when path is empty.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("parse profile: name is required")
	}
	if p.AskTemplate == "" || !strings.Contains(p.AskTemplate, "%s") {
		p.AskTemplate = "What is the %s project about?"
	}
	return &p, nil
}

// AskAbout returns the chat message that asks the assistant about a project.
func (p *Profile) AskAbout(projectTitle string) string {
	return fmt.Sprintf(p.AskTemplate, projectTitle)
}
