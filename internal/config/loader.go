package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// LabelSet is the allowed output of one classifier decision plus its fallback
type LabelSet struct {
	Labels  []string `yaml:"labels"`
	Default string   `yaml:"default"`
}

// DialogueRules drive the visualization clarification dialogue
type DialogueRules struct {
	MaxTurns        int      `yaml:"max_turns"`
	ConfirmKeywords []string `yaml:"confirm_keywords"`
	CancelKeywords  []string `yaml:"cancel_keywords"`
	ChartKeywords   []string `yaml:"chart_keywords"`
}

// CoderRules constrain generated code. ForbiddenPatterns are regular expressions.
type CoderRules struct {
	MaxRetry          int      `yaml:"max_retry"`
	ForbiddenPatterns []string `yaml:"forbidden_patterns"`
}

// Policy is the routing data loaded from config.yaml
type Policy struct {
	Identity       LabelSet      `yaml:"identity"`
	Tasks          LabelSet      `yaml:"tasks"`
	Classification LabelSet      `yaml:"classification"`
	Dialogue       DialogueRules `yaml:"dialogue"`
	Coder          CoderRules    `yaml:"coder"`
	QAHistoryTurns int           `yaml:"qa_history_turns"`
}

// Default returns the built-in policy
func Default() *Policy {
	return &Policy{
		Identity: LabelSet{
			Labels:  []string{"amateur", "professional"},
			Default: "amateur",
		},
		Tasks: LabelSet{
			Labels:  []string{"classification", "retrieval", "visualization", "multimark"},
			Default: "classification",
		},
		Classification: LabelSet{
			Labels:  []string{"star", "galaxy", "nebula", "quasar", "planet", "cluster", "supernova", "unknown"},
			Default: "unknown",
		},
		Dialogue: DialogueRules{
			MaxTurns:        8,
			ConfirmKeywords: []string{"done", "confirm", "ok", "yes", "go", "proceed", "execute", "完成", "确认", "执行"},
			CancelKeywords:  []string{"quit", "exit", "cancel", "q", "取消", "退出"},
			ChartKeywords:   []string{"scatter", "histogram", "heatmap", "line", "bar", "pie", "box"},
		},
		Coder: CoderRules{
			MaxRetry: 3,
			ForbiddenPatterns: []string{
				`\bimport\s+subprocess\b`,
				`\bfrom\s+subprocess\s+import\b`,
				`\bos\.(system|popen|exec\w*)\(`,
				`\bshutil\.rmtree\(`,
				`(^|[^.\w])eval\(`,
				`(^|[^.\w])exec\(`,
				`__import__\(`,
			},
		},
		QAHistoryTurns: 6,
	}
}

// LoadPolicy overlays config.yaml on the defaults. A missing file is not an error.
func LoadPolicy(filepath string) (*Policy, error) {
	policy := Default()

	data, err := os.ReadFile(filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return policy, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %v", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filepath, err)
	}
	return policy, nil
}

// Validate checks that every default is one of its labels
func (p *Policy) Validate() error {
	sets := map[string]LabelSet{
		"identity":       p.Identity,
		"tasks":          p.Tasks,
		"classification": p.Classification,
	}
	for name, set := range sets {
		if len(set.Labels) == 0 {
			return fmt.Errorf("%s: labels cannot be empty", name)
		}
		if !slices.Contains(set.Labels, set.Default) {
			return fmt.Errorf("%s: default %q is not an allowed label", name, set.Default)
		}
	}
	for _, task := range p.Tasks.Labels {
		switch task {
		case "classification", "retrieval", "visualization", "multimark":
		default:
			return fmt.Errorf("tasks: unknown task label %q", task)
		}
	}
	if p.Dialogue.MaxTurns <= 0 {
		return fmt.Errorf("dialogue: max_turns must be positive")
	}
	if p.Coder.MaxRetry <= 0 {
		return fmt.Errorf("coder: max_retry must be positive")
	}
	for _, pattern := range p.Coder.ForbiddenPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("coder: bad forbidden pattern %q: %w", pattern, err)
		}
	}
	return nil
}
