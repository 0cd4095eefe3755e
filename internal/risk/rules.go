package risk

import (
	"regexp"
	"sync"
)

// Severity is the tier a rule belongs to.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Tiers lists severities in evaluation order.
var Tiers = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

// Weight returns the points a distinct finding of this severity adds to the score.
func (s Severity) Weight() int {
	switch s {
	case SeverityHigh:
		return 10
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Weight() > 0
}

// Rule is a single compiled detection pattern.
type Rule struct {
	Pattern     *regexp.Regexp
	Type        string
	Severity    Severity
	Description string
}

// RuleSet holds the ordered rule tables, one per tier. It is never mutated
// after construction and may be shared between goroutines.
type RuleSet struct {
	tiers map[Severity][]Rule
}

type ruleDef struct {
	pattern     string
	riskType    string
	description string
}

var ruleDefs = map[Severity][]ruleDef{
	SeverityHigh: {
		{`unlimited\s+liability`, "Unlimited Liability", "Contract contains unlimited liability clause"},
		{`indemnify.*all\s+claims`, "Broad Indemnification", "Very broad indemnification obligations"},
		{`auto.?renew`, "Auto-Renewal", "Automatic renewal clause detected"},
		{`non.?compete`, "Non-Compete", "Non-compete clause may restrict business"},
		{`exclusiv`, "Exclusivity", "Exclusivity requirements detected"},
		{`perpetual`, "Perpetual Term", "Perpetual or indefinite contract term"},
		{`penalty`, "Penalties", "Financial penalties specified"},
	},
	SeverityMedium: {
		{`termin.*30.*days`, "Short Termination Notice", "Short notice period for termination"},
		{`without\s+cause`, "Termination Without Cause", "Can be terminated without cause"},
		{`confidential`, "Confidentiality Requirements", "Contains confidentiality obligations"},
		{`audit\s+right`, "Audit Rights", "Vendor has audit rights"},
		{`price\s+increase`, "Price Escalation", "Price increase provisions present"},
		{`liability.*limit`, "Liability Limits", "Liability limitations present"},
		{`governing\s+law`, "Jurisdiction", "Specifies governing law jurisdiction"},
	},
	SeverityLow: {
		{`force\s+majeure`, "Force Majeure", "Force majeure clause present"},
		{`notice`, "Notice Requirements", "Contains notice requirements"},
		{`warranty`, "Warranty Limitations", "Warranty terms present"},
		{`insurance`, "Insurance Requirements", "Insurance obligations specified"},
		{`dispute`, "Dispute Resolution", "Dispute resolution procedures present"},
	},
}

var (
	defaultOnce  sync.Once
	defaultRules *RuleSet
)

// DefaultRules returns the built-in contract rule tables. The set is compiled
// once per process.
func DefaultRules() *RuleSet {
	defaultOnce.Do(func() {
		defaultRules = compileRuleSet(ruleDefs)
	})
	return defaultRules
}

func compileRuleSet(defs map[Severity][]ruleDef) *RuleSet {
	rs := &RuleSet{tiers: make(map[Severity][]Rule, len(Tiers))}
	for _, sev := range Tiers {
		for _, d := range defs[sev] {
			rs.tiers[sev] = append(rs.tiers[sev], Rule{
				Pattern:     regexp.MustCompile(`(?i)` + d.pattern),
				Type:        d.riskType,
				Severity:    sev,
				Description: d.description,
			})
		}
	}
	return rs
}

// Tier returns the rules of one severity in table order.
func (rs *RuleSet) Tier(sev Severity) []Rule {
	rules := rs.tiers[sev]
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Rules returns every rule, high tier first.
func (rs *RuleSet) Rules() []Rule {
	var out []Rule
	for _, sev := range Tiers {
		out = append(out, rs.tiers[sev]...)
	}
	return out
}

// Len is the total number of rules across tiers.
func (rs *RuleSet) Len() int {
	n := 0
	for _, sev := range Tiers {
		n += len(rs.tiers[sev])
	}
	return n
}

// RuleInfo is the display form of a rule.
type RuleInfo struct {
	Type        string   `json:"type" yaml:"type"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Weight      int      `json:"weight" yaml:"weight"`
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Description string   `json:"description" yaml:"description"`
}

// Describe returns the rule table in a serializable form.
func (rs *RuleSet) Describe() []RuleInfo {
	rules := rs.Rules()
	out := make([]RuleInfo, 0, len(rules))
	for _, r := range rules {
		out = append(out, RuleInfo{
			Type:        r.Type,
			Severity:    r.Severity,
			Weight:      r.Severity.Weight(),
			Pattern:     r.Pattern.String(),
			Description: r.Description,
		})
	}
	return out
}
