// Package preprocessor parses raw markdown stories into structured
// requirements: sections, extracted data, and story metadata including
// a detected story type. It is the first pipeline stage.
package preprocessor

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// ExtractedData holds the structured fields pulled out of a story.
type ExtractedData struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Requirements    []string `json:"requirements"`
	SuccessCriteria []string `json:"success_criteria"`
	Constraints     []string `json:"constraints"`
	Components      []string `json:"components"`
}

// Metadata describes story-level metrics and the detected story type.
type Metadata struct {
	StoryType            string    `json:"story_type"`
	DetectedAt           time.Time `json:"detected_at"`
	WordCount            int       `json:"word_count"`
	SectionCount         int       `json:"section_count"`
	RequirementCount     int       `json:"requirement_count"`
	SuccessCriteriaCount int       `json:"success_criteria_count"`
	ConstraintCount      int       `json:"constraint_count"`
	ComponentsMentioned  []string  `json:"components_mentioned"`
	HasPreamble          bool      `json:"has_preamble"`
	EstimatedComplexity  string    `json:"estimated_complexity"`
}

// Output is the preprocessing result consumed by the planner.
type Output struct {
	ParsedSections    map[string]string `json:"parsed_sections"`
	StructureValid    bool              `json:"structure_valid"`
	ExtractedData     ExtractedData     `json:"extracted_data"`
	Metadata          Metadata          `json:"metadata"`
	ParsingErrors     []string          `json:"parsing_errors"`
	ParsingWarnings   []string          `json:"parsing_warnings"`
	InputSummary      string            `json:"input_summary"`
	DetectedStoryType string            `json:"detected_story_type"`
}

// Preprocessor parses and validates input stories against its rules.
type Preprocessor struct {
	rules Rules
}

// New creates a Preprocessor with the given validation rules.
func New(rules Rules) *Preprocessor {
	return &Preprocessor{rules: rules}
}

var headerPattern = regexp.MustCompile(`^(#+)\s+(.+?)\s*$`)

// Process runs the full preprocessing pipeline: parse sections,
// validate structure, extract structured data, and generate metadata.
// Validation failures are reported in the output rather than returned
// as errors; the pipeline decides whether they are fatal.
func (p *Preprocessor) Process(input string) Output {
	var errs, warnings []string

	sections := ParseSections(input)

	structErrs := p.validateStructure(sections, input)
	if len(structErrs) > 0 {
		errs = append(errs, structErrs...)
		warnings = append(warnings, "structure validation failed")
	}

	extracted := extractData(sections)
	metadata := buildMetadata(sections, extracted, input)

	log.Printf("[preprocessor] parsed %d sections, structure_valid=%t, story_type=%s",
		len(sections), len(structErrs) == 0, metadata.StoryType)

	return Output{
		ParsedSections:    sections,
		StructureValid:    len(structErrs) == 0,
		ExtractedData:     extracted,
		Metadata:          metadata,
		ParsingErrors:     errs,
		ParsingWarnings:   warnings,
		InputSummary:      summarize(sections),
		DetectedStoryType: metadata.StoryType,
	}
}

// ParseSections splits markdown content into sections keyed by header
// text. Content before the first header lands in a "preamble" section.
func ParseSections(content string) map[string]string {
	sections := make(map[string]string)
	current := "preamble"
	var body []string

	flush := func() {
		if len(body) > 0 {
			sections[current] = strings.TrimSpace(strings.Join(body, "\n"))
			body = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if match := headerPattern.FindStringSubmatch(strings.TrimLeft(line, " \t")); match != nil {
			flush()
			current = strings.TrimSpace(match[2])
			continue
		}
		body = append(body, line)
	}
	flush()

	return sections
}

// validateStructure checks the parsed sections against the rules:
// required sections present, no empty sections, minimum length.
func (p *Preprocessor) validateStructure(sections map[string]string, content string) []string {
	var errs []string

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, strings.ToLower(strings.TrimSpace(name)))
	}

	for _, required := range p.rules.RequiredSections {
		lower := strings.ToLower(required)
		found := false
		for _, name := range names {
			if strings.Contains(name, lower) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("missing required section: %s", required))
		}
	}

	for name, body := range sections {
		if strings.TrimSpace(body) == "" {
			errs = append(errs, fmt.Sprintf("section %q is empty", name))
		}
	}

	if len(strings.TrimSpace(content)) < p.rules.MinContentLength {
		errs = append(errs, fmt.Sprintf("input story is too short (minimum %d characters)", p.rules.MinContentLength))
	}

	return errs
}

// extractData pulls structured fields out of the parsed sections using
// section-name matching and bullet-line extraction.
func extractData(sections map[string]string) ExtractedData {
	return ExtractedData{
		Title:           extractTitle(sections),
		Description:     extractDescription(sections),
		Requirements:    bulletLines(sections, "requirement"),
		SuccessCriteria: append(bulletLines(sections, "success"), bulletLines(sections, "acceptance")...),
		Constraints:     append(bulletLines(sections, "constraint"), bulletLines(sections, "limitation")...),
		Components:      extractComponents(sections),
	}
}

func extractTitle(sections map[string]string) string {
	if preamble, ok := sections["preamble"]; ok {
		if first := firstLine(preamble); first != "" {
			return first
		}
	}
	for name, body := range sections {
		if name == "preamble" || strings.TrimSpace(body) == "" {
			continue
		}
		return firstLine(body)
	}
	return "Untitled Story"
}

func extractDescription(sections map[string]string) string {
	for _, candidate := range []string{"story", "description", "overview"} {
		for name, body := range sections {
			if strings.Contains(strings.ToLower(name), candidate) {
				return strings.TrimSpace(body)
			}
		}
	}
	return strings.TrimSpace(sections["preamble"])
}

// bulletLines collects non-header lines from every section whose name
// contains the keyword, stripping list markers.
func bulletLines(sections map[string]string, keyword string) []string {
	var lines []string
	for name, body := range sections {
		if !strings.Contains(strings.ToLower(name), keyword) {
			continue
		}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			line = strings.TrimSpace(strings.TrimLeft(line, "-•* "))
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

var componentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:component|service|module|api|endpoint)\s+['"]?([a-zA-Z0-9_\-]+)`),
	regexp.MustCompile(`(?i)(?:create|build|develop|implement)\s+(?:a|the)?\s*([a-zA-Z0-9_\-]+)`),
}

func extractComponents(sections map[string]string) []string {
	var all []string
	for _, body := range sections {
		all = append(all, body)
	}
	text := strings.Join(all, " ")

	seen := make(map[string]bool)
	var components []string
	for _, pattern := range componentPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			name := match[1]
			if !seen[name] {
				seen[name] = true
				components = append(components, name)
			}
		}
	}
	return components
}

// buildMetadata computes story metrics and detects the story type.
func buildMetadata(sections map[string]string, extracted ExtractedData, content string) Metadata {
	wordCount := len(strings.Fields(content))
	preamble, hasPreamble := sections["preamble"]

	return Metadata{
		StoryType:            DetectStoryType(content),
		DetectedAt:           time.Now(),
		WordCount:            wordCount,
		SectionCount:         len(sections),
		RequirementCount:     len(extracted.Requirements),
		SuccessCriteriaCount: len(extracted.SuccessCriteria),
		ConstraintCount:      len(extracted.Constraints),
		ComponentsMentioned:  extracted.Components,
		HasPreamble:          hasPreamble && strings.TrimSpace(preamble) != "",
		EstimatedComplexity:  estimateComplexity(wordCount, len(extracted.Requirements)),
	}
}

var (
	apiKeywords = []string{"api", "endpoint", "rest", "http", "service", "backend", "database"}
	uiKeywords  = []string{"ui", "frontend", "interface", "component", "mfe", "react", "vue", "angular",
		"dashboard", "design", "layout", "button", "form", "widget", "page"}
	enhancementKeywords = []string{"enhancement", "enhance", "improve", "improvement", "upgrade", "extend", "extension"}
)

// DetectStoryType classifies a story as API or UI work, development or
// enhancement, by counting whole-word keyword matches. Word boundaries
// avoid substring hits (e.g. "add" inside "addresses"). UI wins ties
// when both keyword families appear.
func DetectStoryType(content string) string {
	lower := strings.ToLower(content)

	apiCount := countWordMatches(lower, apiKeywords)
	uiCount := countWordMatches(lower, uiKeywords)
	isEnhancement := countWordMatches(lower, enhancementKeywords) > 0

	suffix := "_development"
	if isEnhancement {
		suffix = "_enhancement"
	}

	switch {
	case uiCount > apiCount:
		return "ui" + suffix
	case apiCount > uiCount:
		return "api" + suffix
	case uiCount > 0:
		return "ui" + suffix
	case apiCount > 0:
		return "api" + suffix
	default:
		return "unknown"
	}
}

func countWordMatches(content string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
		if pattern.MatchString(content) {
			count++
		}
	}
	return count
}

// estimateComplexity scores a story from its size and requirement count.
func estimateComplexity(wordCount, requirementCount int) string {
	score := float64(wordCount)/100 + float64(requirementCount)*2
	switch {
	case score < 5:
		return "low"
	case score < 15:
		return "medium"
	default:
		return "high"
	}
}

// summarize builds a one-line summary from the first non-preamble section.
func summarize(sections map[string]string) string {
	for name, body := range sections {
		if name == "preamble" || strings.TrimSpace(body) == "" {
			continue
		}
		return fmt.Sprintf("%s: %s", name, firstLine(body))
	}
	return "No summary available"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
