package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to coursebot! Let's configure your course assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{string(ProviderOpenAI), string(ProviderOllama)},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)
	cfg.EmbeddingProvider = cfg.Provider
	preset := GetPreset(cfg.Provider)

	if cfg.Model, err = ask("Chat model", preset.Model); err != nil {
		return nil, err
	}
	if cfg.EmbeddingModel, err = ask("Embedding model", preset.EmbeddingModel); err != nil {
		return nil, err
	}
	if cfg.CorpusDir, err = ask("Directory with course material", cfg.CorpusDir); err != nil {
		return nil, err
	}

	extra, err := ask("Extra exclude patterns (comma-separated, blank for defaults)", "")
	if err != nil {
		return nil, err
	}
	cfg.Exclude = append(cfg.Exclude, splitAndTrim(extra)...)

	topK, err := (&promptui.Prompt{
		Label:    "Passages per query",
		Default:  strconv.Itoa(cfg.Retrieval.TopK),
		Validate: positiveInt,
	}).Run()
	if err != nil {
		return nil, fmt.Errorf("passages per query: %w", err)
	}
	cfg.Retrieval.TopK, _ = strconv.Atoi(topK)

	expandPrompt := promptui.Select{
		Label: "Expand semantic queries into variants",
		Items: []string{"no", "yes"},
	}
	idx, _, err := expandPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("query expansion: %w", err)
	}
	cfg.Retrieval.QueryExpansion = idx == 1

	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running coursebot index.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func ask(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	v, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(v), nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and drops empty parts.
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
