package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/default.yaml
var defaultPrompts []byte

// PromptConfig holds the prompt and model parameters for bill extraction
type PromptConfig struct {
	BillExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"bill_extraction"`
}

// PromptData is passed to the user prompt template
type PromptData struct {
	Filename string
	Currency string
}

// LoadPrompts loads prompts from a YAML file, or the built-in prompts when path is empty
func LoadPrompts(path string) (*PromptConfig, error) {
	data := defaultPrompts
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read prompts file: %w", err)
		}
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.BillExtraction.UserTemplate == "" {
		return nil, fmt.Errorf("prompts file has no bill_extraction.user_template")
	}
	if _, err := template.New("prompt").Parse(prompts.BillExtraction.UserTemplate); err != nil {
		return nil, fmt.Errorf("invalid bill_extraction.user_template: %w", err)
	}

	return &prompts, nil
}

func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
