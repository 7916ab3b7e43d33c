package scan

import "testing"

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"main.go":          "go",
		"src/app.tsx":      "typescript",
		"lib/util.cjs":     "javascript",
		"script.PY":        "python",
		"core.rs":          "rust",
		"Job.java":         "java",
		"Program.cs":       "csharp",
		"engine.cpp":       "cpp",
		"kernel.c":         "c",
		"index.php":        "php",
		"task.rake":        "ruby",
		"App.swift":        "swift",
		"Main.kts":         "kotlin",
		"Build.scala":      "scala",
		"page.html":        "html",
		"style.scss":       "css",
		"schema.sql":       "sql",
		"deploy.sh":        "shell",
		"README.md":        "markdown",
		"config.yaml":      "yaml",
		"Cargo.toml":       "toml",
		"comp.vue":         "vue",
		"widget.svelte":    "svelte",
		"LICENSE":          "",
		"archive.tar.gz":   "",
		"noext":            "",
		"trailing.":        "",
		"deep/dir/file.ex": "elixir",
	}
	for name, want := range cases {
		if got := DetectLanguage(name); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", name, got, want)
		}
	}
}
