// Package privacy enforces the data boundary in front of external model
// calls: path allow/deny policy, bounded code snippets, and secret/PII
// redaction with an auditable report.
package privacy

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// denyPatterns are always excluded, whatever the allow rules say.
var denyPatterns = []string{
	".env*",
	"**/.env*",
	"**/*.pem",
	"**/*.key",
	"**/*.p12",
	"**/*.pfx",
	"**/id_rsa*",
	"**/credentials*",
	"credentials*",
	"secrets/**",
	"**/secrets/**",
	"node_modules/**",
	"**/node_modules/**",
	"dist/**",
	"**/dist/**",
	"build/**",
	"**/build/**",
	"coverage/**",
	"**/coverage/**",
}

// allowPrefixes admit whole source trees.
var allowPrefixes = []string{
	"apps/",
	"packages/",
	"infra/",
	"scripts/",
	"prisma/",
}

// allowExtensions admit individual files anywhere outside denied paths.
var allowExtensions = []string{
	".ts", ".tsx", ".js", ".jsx",
	".json", ".md",
	".yml", ".yaml",
	".sql", ".prisma",
	".sh", ".ps1",
}

// IsPathAllowed reports whether a repository-relative path may be shared
// outside the service. Deny rules win over allow rules.
func IsPathAllowed(path string) bool {
	path = strings.TrimPrefix(path, "./")
	if path == "" {
		return false
	}

	for _, pattern := range denyPatterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return false
		}
	}

	for _, prefix := range allowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	lower := strings.ToLower(path)
	for _, ext := range allowExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// FilterPaths returns the subset of paths that pass the policy.
func FilterPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if IsPathAllowed(p) {
			out = append(out, p)
		}
	}
	return out
}
