package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// customIgnoreFile is honored in addition to .gitignore, with the same syntax
// and the same hierarchical scoping.
const customIgnoreFile = ".driftignore"

var ignoreFilenames = []string{".gitignore", customIgnoreFile}

// defaultIgnoreDirs are pruned from every scan even when no ignore file is
// present anywhere in the tree.
var defaultIgnoreDirs = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"target",
	".next",
	".nuxt",
	"__pycache__",
	".pytest_cache",
	"coverage",
	".nyc_output",
	"vendor",
	".venv",
	"venv",
	".tox",
	".mypy_cache",
	"bin",
	"obj",
}

// ruleNode is one level of the hierarchical ignore chain. Each walked
// directory that contains an ignore file gets its own node pointing at its
// parent's; directories without one share the parent's node. Nodes are
// immutable after construction, so workers read them without locking.
type ruleNode struct {
	parent   *ruleNode
	patterns []gitignore.Pattern // in file order
}

// rootRules builds the chain bottom: built-in defaults, then any extra
// patterns from config. Hierarchical ignore files stack on top and shadow
// both.
func rootRules(extra []string) *ruleNode {
	defaults := &ruleNode{}
	for _, dir := range defaultIgnoreDirs {
		defaults.patterns = append(defaults.patterns, gitignore.ParsePattern(dir+"/", nil))
	}
	if len(extra) == 0 {
		return defaults
	}
	n := &ruleNode{parent: defaults}
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		n.patterns = append(n.patterns, gitignore.ParsePattern(p, nil))
	}
	return n
}

// loadDirRules reads the ignore files in absDir, if any, and returns the node
// active for that directory's descendants. relDir is the root-relative slash
// path of the directory ("" for the root).
func loadDirRules(parent *ruleNode, absDir, relDir string) *ruleNode {
	var domain []string
	if relDir != "" {
		domain = strings.Split(relDir, "/")
	}

	var patterns []gitignore.Pattern
	for _, name := range ignoreFilenames {
		f, err := os.Open(filepath.Join(absDir, name))
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, gitignore.ParsePattern(line, domain))
		}
		f.Close()
	}
	if len(patterns) == 0 {
		return parent
	}
	return &ruleNode{parent: parent, patterns: patterns}
}

// excluded reports whether the root-relative path is ignored. The deepest
// applicable rule decides; within one file the later rule wins; a negation
// re-includes.
func (n *ruleNode) excluded(relPath string, isDir bool) bool {
	parts := strings.Split(relPath, "/")
	for node := n; node != nil; node = node.parent {
		for i := len(node.patterns) - 1; i >= 0; i-- {
			switch node.patterns[i].Match(parts, isDir) {
			case gitignore.Exclude:
				return true
			case gitignore.Include:
				return false
			}
		}
	}
	return false
}
