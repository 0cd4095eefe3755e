package risk

import (
	"strings"
	"time"
)

// MaxScore is the ceiling applied to the aggregate score.
const MaxScore = 100

// Finding is one detected rule in a text.
type Finding struct {
	Type        string   `json:"type" yaml:"type"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	Occurrences int      `json:"occurrences" yaml:"occurrences"`
}

// Report is the result of a single analysis.
type Report struct {
	Risks             []Finding `json:"risks" yaml:"risks"`
	RiskScore         int       `json:"riskScore" yaml:"riskScore"`
	RiskCount         int       `json:"riskCount" yaml:"riskCount"`
	WordCount         int       `json:"wordCount" yaml:"wordCount"`
	AnalysisTimestamp time.Time `json:"analysisTimestamp" yaml:"analysisTimestamp"`
}

// Classifier maps text to a Report using a fixed RuleSet. It holds no
// mutable state; Analyze is safe for concurrent use.
type Classifier struct {
	rules *RuleSet
	now   func() time.Time
}

func NewClassifier(rules *RuleSet) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules, now: time.Now}
}

func (c *Classifier) Rules() *RuleSet {
	return c.rules
}

// Analyze scans text tier by tier. A rule type contributes its tier weight
// once, however many times it matches.
func (c *Classifier) Analyze(text string) Report {
	findings := make([]Finding, 0)
	total := 0

	for _, sev := range Tiers {
		for _, rule := range c.rules.tiers[sev] {
			matches := rule.Pattern.FindAllStringIndex(text, -1)
			if len(matches) == 0 {
				continue
			}
			if hasType(findings, rule.Type) {
				continue
			}
			findings = append(findings, Finding{
				Type:        rule.Type,
				Severity:    sev,
				Description: rule.Description,
				Occurrences: len(matches),
			})
			total += sev.Weight()
		}
	}

	return Report{
		Risks:             findings,
		RiskScore:         clampScore(total),
		RiskCount:         len(findings),
		WordCount:         WordCount(text),
		AnalysisTimestamp: c.now(),
	}
}

func hasType(findings []Finding, riskType string) bool {
	for _, f := range findings {
		if f.Type == riskType {
			return true
		}
	}
	return false
}

func clampScore(total int) int {
	if total < 0 {
		return 0
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}

// WordCount counts whitespace-delimited non-empty tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
