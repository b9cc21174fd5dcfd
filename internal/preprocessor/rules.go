package preprocessor

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules configures structure validation for input stories.
type Rules struct {
	// StoryTypes lists the story types the detector may emit.
	StoryTypes []string `yaml:"story_types"`
	// RequiredSections must each appear (by substring match) among the
	// parsed section names.
	RequiredSections []string `yaml:"required_sections"`
	// OptionalSections are recognized but not enforced.
	OptionalSections []string `yaml:"optional_sections"`
	// MinContentLength is the minimum story length in characters.
	MinContentLength int `yaml:"min_content_length"`
}

// DefaultRules returns the validation rules used when no rules file is
// configured.
func DefaultRules() Rules {
	return Rules{
		StoryTypes:       []string{"api_development", "ui_development", "api_enhancement", "ui_enhancement"},
		RequiredSections: []string{"Story", "Requirements"},
		OptionalSections: []string{"Success Criteria", "Constraints", "Notes", "Acceptance Criteria"},
		MinContentLength: 50,
	}
}

// LoadRules reads validation rules from a YAML file. A missing file
// falls back to the defaults with a logged warning.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[preprocessor] rules file %s not found, using defaults", path)
			return DefaultRules(), nil
		}
		return Rules{}, fmt.Errorf("read validation rules: %w", err)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse validation rules %s: %w", path, err)
	}
	if rules.MinContentLength <= 0 {
		rules.MinContentLength = DefaultRules().MinContentLength
	}
	return rules, nil
}
