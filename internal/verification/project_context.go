package verification

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectContext contains information about the project's structure and conventions.
type ProjectContext struct {
	Type         string   // "go", "node", "rust", "python", "make", "unknown"
	TestCommand  []string // Command to run tests
	BuildCommand []string // Command to build
	LintCommand  []string // Optional lint command
}

// HasCommands reports whether anything can be run against the project.
func (c *ProjectContext) HasCommands() bool {
	return len(c.TestCommand) > 0 || len(c.BuildCommand) > 0
}

// DetectProjectContext analyzes a repository and returns project-specific context.
// lookPath reports whether an optional tool is installed; nil means none are.
func DetectProjectContext(repoPath string, lookPath func(string) (string, error)) *ProjectContext {
	has := func(name string) bool {
		if lookPath == nil {
			return false
		}
		_, err := lookPath(name)
		return err == nil
	}
	ctx := &ProjectContext{}

	switch {
	case fileExistsAtPath(filepath.Join(repoPath, "go.mod")):
		ctx.Type = "go"
		ctx.BuildCommand = []string{"go", "build", "./..."}
		ctx.TestCommand = []string{"go", "test", "./..."}
		ctx.LintCommand = []string{"go", "vet", "./..."}

	case fileExistsAtPath(filepath.Join(repoPath, "Cargo.toml")):
		ctx.Type = "rust"
		ctx.BuildCommand = []string{"cargo", "build"}
		ctx.TestCommand = []string{"cargo", "test"}
		if has("cargo-clippy") {
			ctx.LintCommand = []string{"cargo", "clippy"}
		}

	case fileExistsAtPath(filepath.Join(repoPath, "pyproject.toml")),
		fileExistsAtPath(filepath.Join(repoPath, "setup.py")),
		fileExistsAtPath(filepath.Join(repoPath, "requirements.txt")):
		ctx.Type = "python"
		if dirExists(filepath.Join(repoPath, "tests")) || fileExistsAtPath(filepath.Join(repoPath, "pytest.ini")) {
			ctx.TestCommand = []string{"pytest"}
		} else {
			ctx.TestCommand = []string{"python", "-m", "unittest", "discover"}
		}
		if has("ruff") || fileExistsAtPath(filepath.Join(repoPath, ".ruff.toml")) {
			ctx.LintCommand = []string{"ruff", "check", "."}
		}

	case fileExistsAtPath(filepath.Join(repoPath, "package.json")):
		ctx.Type = "node"
		pkgData, _ := os.ReadFile(filepath.Join(repoPath, "package.json"))
		pkg := string(pkgData)

		switch {
		case strings.Contains(pkg, `"test"`):
			ctx.TestCommand = []string{"npm", "test"}
		case strings.Contains(pkg, "vitest"):
			ctx.TestCommand = []string{"npx", "vitest", "run"}
		case strings.Contains(pkg, "jest"):
			ctx.TestCommand = []string{"npx", "jest"}
		}
		if strings.Contains(pkg, `"build"`) {
			ctx.BuildCommand = []string{"npm", "run", "build"}
		} else if fileExistsAtPath(filepath.Join(repoPath, "tsconfig.json")) {
			ctx.BuildCommand = []string{"npx", "tsc", "--noEmit"}
		}
		if strings.Contains(pkg, "eslint") {
			ctx.LintCommand = []string{"npx", "eslint", "."}
		}

	case fileExistsAtPath(filepath.Join(repoPath, "Makefile")):
		ctx.Type = "make"
		ctx.TestCommand = []string{"make", "test"}

	default:
		ctx.Type = "unknown"
	}

	return ctx
}

func fileExistsAtPath(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
