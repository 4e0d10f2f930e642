package profile

import "regexp"

// sourceFileTable interns source-file paths separately from the general
// string table, because they support a canonicalization transform on
// serialization (spec.md §4.1).
type sourceFileTable struct {
	strings *stringTable
	index   map[string]int32
	raw     []string
}

func newSourceFileTable(strs *stringTable) *sourceFileTable {
	return &sourceFileTable{strings: strs, index: make(map[string]int32)}
}

func (t *sourceFileTable) HandleFor(path string) SourceFileHandle {
	if idx, ok := t.index[path]; ok {
		return SourceFileHandle(idx)
	}
	idx := int32(len(t.raw))
	t.raw = append(t.raw, path)
	t.index[path] = idx
	return SourceFileHandle(idx)
}

func (t *sourceFileTable) Path(h SourceFileHandle) string {
	if h == NoSourceFile {
		return ""
	}
	return canonicalizeSourcePath(t.raw[h])
}

// canonicalRule rewrites a source path matching Pattern's capture groups
// into Template ($1, $2, ... referring to submatches).
type canonicalRule struct {
	Pattern  *regexp.Regexp
	Template string
}

// canonicalRules implements CanonicalizeSourcePath's declarative rule
// table (SPEC_FULL.md §4.12), generalizing the rustc-specific rewrite
// spec.md §4.1 names into a registry a future toolchain can extend.
var canonicalRules = []canonicalRule{
	{
		Pattern:  regexp.MustCompile(`^/rustc/([0-9a-f]+)/library/(.+)$`),
		Template: "git:github.com/rust-lang/rust:library/$2:$1",
	},
	{
		Pattern:  regexp.MustCompile(`^.*/\.cargo/registry/src/[^/]+/([^-]+)-([0-9.]+)/(.+)$`),
		Template: "cargo:$1-$2:$3",
	},
}

// CanonicalizeSourcePath maps a raw, as-captured source path to its
// canonical display form, e.g. mapping ".../rustc/<hash>/library/..." to
// "git:github.com/rust-lang/rust:library/...:<hash>" (spec.md §4.1).
func CanonicalizeSourcePath(path string) string { return canonicalizeSourcePath(path) }

func canonicalizeSourcePath(path string) string {
	for _, rule := range canonicalRules {
		if m := rule.Pattern.FindStringSubmatchIndex(path); m != nil {
			return string(rule.Pattern.ExpandString(nil, rule.Template, path, m))
		}
	}
	return path
}

// RegisterCanonicalRule lets an embedding toolchain add its own source
// path rewrite rule, e.g. for a different language's standard library
// layout.
func RegisterCanonicalRule(pattern *regexp.Regexp, template string) {
	canonicalRules = append(canonicalRules, canonicalRule{Pattern: pattern, Template: template})
}
