package scan

import (
	"path"
	"strings"
)

// DetectLanguage maps a file name to a language tag by extension alone, or ""
// when the extension is unknown. Unknown files are still scanned.
func DetectLanguage(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch ext {
	case "ts", "tsx", "mts", "cts":
		return "typescript"
	case "js", "jsx", "mjs", "cjs":
		return "javascript"
	case "py", "pyi":
		return "python"
	case "rs":
		return "rust"
	case "go":
		return "go"
	case "java":
		return "java"
	case "cs":
		return "csharp"
	case "cpp", "cc", "cxx", "hpp", "hh":
		return "cpp"
	case "c", "h":
		return "c"
	case "php":
		return "php"
	case "rb", "rake", "gemspec":
		return "ruby"
	case "swift":
		return "swift"
	case "kt", "kts":
		return "kotlin"
	case "scala", "sc":
		return "scala"
	case "html", "htm":
		return "html"
	case "css", "scss", "less":
		return "css"
	case "sql":
		return "sql"
	case "sh", "bash", "zsh":
		return "shell"
	case "md", "markdown":
		return "markdown"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	case "xml":
		return "xml"
	case "vue":
		return "vue"
	case "svelte":
		return "svelte"
	case "dart":
		return "dart"
	case "lua":
		return "lua"
	case "pl", "pm":
		return "perl"
	case "ex", "exs":
		return "elixir"
	case "erl":
		return "erlang"
	case "hs":
		return "haskell"
	case "zig":
		return "zig"
	case "r":
		return "r"
	default:
		return ""
	}
}
