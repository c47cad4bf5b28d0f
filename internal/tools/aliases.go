package tools

import (
	"strings"

	"github.com/gobwas/glob"
)

// legacyAliases rewrites exact old-style tool names (from before the
// registry settled on "provider:tool") to their current canonical form.
var legacyAliases = map[string]string{
	"slack_send_message": "comms:send_message",
	"slack_react":        "comms:react",
	"github_create_pr":   "git:create_pr",
	"github_review":      "git:create_review",
	"web_search":         "search:query",
}

// deprecatedProviderPatterns rewrites a whole family of old provider
// prefixes at once via glob matching, for names legacyAliases doesn't
// enumerate one by one.
var deprecatedProviderPatterns = []struct {
	pattern     glob.Glob
	newProvider string
}{
	{glob.MustCompile("slack__*"), "comms"},
	{glob.MustCompile("github__*"), "git"},
	{glob.MustCompile("browser__*"), "playwright"},
}

// NormalizeToolName canonicalizes a tool name a model might have produced
// against an older naming scheme: "__" separators become ":", known exact
// aliases are rewritten, and any remaining deprecated provider prefix is
// remapped via the glob table. Names already in canonical form pass
// through unchanged.
func NormalizeToolName(name string) string {
	if _, ok := Registry[name]; ok {
		return name
	}
	if canonical, ok := legacyAliases[name]; ok {
		return canonical
	}

	rewritten := strings.Replace(name, "__", ":", 1)
	if _, ok := Registry[rewritten]; ok {
		return rewritten
	}

	for _, dep := range deprecatedProviderPatterns {
		if dep.pattern.Match(name) {
			parts := strings.SplitN(rewritten, ":", 2)
			if len(parts) == 2 {
				candidate := dep.newProvider + ":" + parts[1]
				if _, ok := Registry[candidate]; ok {
					return candidate
				}
			}
		}
	}

	return name
}
