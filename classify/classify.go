package classify

import (
	"fmt"
	"regexp"
	"strings"

	"rmb_tracker/models"
)

// Taxonomy is the classification rule set. Rule order is load-bearing:
// evaluation is first-match-wins, so more specific functions (operations)
// must come before buckets that overlap on shared words (engineering).
// Loaded from config/taxonomy.yaml when present, otherwise DefaultTaxonomy.
type Taxonomy struct {
	Version   string         `yaml:"version"`
	Functions []FunctionRule `yaml:"functions"`
	Levels    []LevelRule    `yaml:"levels"`
}

// FunctionRule maps a function name to the substring keywords that select it.
type FunctionRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// LevelRule maps a seniority level to regexp variants (full word and
// abbreviated) matched against the normalized title.
type LevelRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// Result is the classification outcome. Empty strings mean "unknown",
// which is a legitimate result, not an error; unclassified postings are
// flagged for manual review downstream.
type Result struct {
	Function string
	Level    string
}

// Classifier applies a compiled taxonomy. Immutable after construction;
// safe for concurrent use.
type Classifier struct {
	version   string
	functions []compiledFunction
	levels    []compiledLevel
}

type compiledFunction struct {
	name     string
	keywords []string
}

type compiledLevel struct {
	name     string
	patterns []*regexp.Regexp
}

// New compiles a taxonomy into a classifier. Keywords are normalized the
// same way titles are, so keyword authors can write "FP&A" and still match.
func New(t Taxonomy) (*Classifier, error) {
	c := &Classifier{version: t.Version}

	for _, fr := range t.Functions {
		if fr.Name == "" || len(fr.Keywords) == 0 {
			return nil, fmt.Errorf("function rule %q: name and keywords are required", fr.Name)
		}
		cf := compiledFunction{name: fr.Name}
		for _, kw := range fr.Keywords {
			norm := NormalizeTitle(kw)
			if norm == "" {
				return nil, fmt.Errorf("function rule %q: keyword %q normalizes to nothing", fr.Name, kw)
			}
			cf.keywords = append(cf.keywords, norm)
		}
		c.functions = append(c.functions, cf)
	}

	for _, lr := range t.Levels {
		if lr.Name == "" || len(lr.Patterns) == 0 {
			return nil, fmt.Errorf("level rule %q: name and patterns are required", lr.Name)
		}
		cl := compiledLevel{name: lr.Name}
		for _, p := range lr.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("level rule %q: pattern %q: %w", lr.Name, p, err)
			}
			cl.patterns = append(cl.patterns, re)
		}
		c.levels = append(c.levels, cl)
	}

	return c, nil
}

// Default returns a classifier compiled from DefaultTaxonomy.
func Default() *Classifier {
	c, err := New(DefaultTaxonomy())
	if err != nil {
		panic(fmt.Sprintf("default taxonomy does not compile: %v", err))
	}
	return c
}

func (c *Classifier) Version() string { return c.version }

// Functions returns the function names in priority order.
func (c *Classifier) Functions() []string {
	out := make([]string, len(c.functions))
	for i, f := range c.functions {
		out[i] = f.name
	}
	return out
}

// Levels returns the level names in priority order.
func (c *Classifier) Levels() []string {
	out := make([]string, len(c.levels))
	for i, l := range c.levels {
		out[i] = l.name
	}
	return out
}

// Classify maps a raw title to a function and a seniority level.
// Pure and total: any input, including empty, yields a Result.
func (c *Classifier) Classify(title string) Result {
	norm := NormalizeTitle(title)
	if norm == "" {
		return Result{}
	}

	var res Result
	for _, f := range c.functions {
		if containsAny(norm, f.keywords) {
			res.Function = f.name
			break
		}
	}
	for _, l := range c.levels {
		if matchesAny(norm, l.patterns) {
			res.Level = l.name
			break
		}
	}
	return res
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Longest pattern first: "s.v.p." and "e.v.p." contain "v.p." as a
// substring, so application order decides the outcome.
var titleReplacements = []struct {
	dotted string
	plain  string
}{
	{"s.v.p.", "svp"},
	{"e.v.p.", "evp"},
	{"v.p.", "vp"},
}

var (
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpaceRegex = regexp.MustCompile(`\s+`)
)

// NormalizeTitle lowercases a title, resolves dotted abbreviations, and
// squashes punctuation and whitespace so keyword containment and
// word-boundary patterns behave predictably.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, r := range titleReplacements {
		t = strings.ReplaceAll(t, r.dotted, r.plain)
	}
	t = nonAlnumRegex.ReplaceAllString(t, " ")
	t = multiSpaceRegex.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// DefaultTaxonomy is the shipped rule set. Operations sits first so titles
// like "Director of Engineering Operations" resolve to operations rather
// than engineering.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Version: "2026-08",
		Functions: []FunctionRule{
			{Name: models.FunctionOperations, Keywords: []string{
				"operations", "supply chain", "logistics", "procurement",
				"chief operating", "business operation",
			}},
			{Name: models.FunctionFinance, Keywords: []string{
				"finance", "financial", "accounting", "controller",
				"treasury", "fp&a", "chief financial",
			}},
			{Name: models.FunctionGTM, Keywords: []string{
				"sales", "marketing", "revenue", "growth", "go to market",
				"gtm", "demand generation", "partnerships", "customer success",
				"brand",
			}},
			{Name: models.FunctionProduct, Keywords: []string{
				"product",
			}},
			{Name: models.FunctionEngineering, Keywords: []string{
				"engineering", "engineer", "software", "technology",
				"infrastructure", "platform", "security", "data",
			}},
		},
		Levels: []LevelRule{
			{Name: models.LevelCLevel, Patterns: []string{
				`\bchief\b`,
				`\b(ceo|coo|cfo|cto|cmo|cpo|cro|chro|ciso)\b`,
			}},
			{Name: models.LevelSVP, Patterns: []string{
				`\bsvp\b`,
				`\bevp\b`,
				`\b(senior|sr|executive) vice president\b`,
				`\b(senior|sr|executive) vp\b`,
			}},
			{Name: models.LevelVP, Patterns: []string{
				`\bvp\b`,
				`\bvice president\b`,
			}},
			{Name: models.LevelDirector, Patterns: []string{
				`\bdirector\b`,
				`\bdir\b`,
			}},
		},
	}
}
