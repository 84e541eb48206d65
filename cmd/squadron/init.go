package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	gogit "github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/config"
)

var (
	initForce bool
	initNoGit bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a squadron project",
	Long: `Initialize a directory for use with squadron.

This command:
  - Verifies prerequisites (git, claude CLI in cli mode, credentials)
  - Initializes a git repository if needed
  - Creates the .squadron state directory
  - Writes a .squadron.yaml template

Examples:
  squadron init              # Initialize current directory
  squadron init ./myproject  # Initialize specific directory
  squadron init --force      # Rewrite the config template
  squadron init --no-git     # Skip git initialization`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initNoGit, "no-git", false, "Skip git initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}
	if err := os.Chdir(absPath); err != nil {
		return fmt.Errorf("changing to directory %s: %w", absPath, err)
	}

	fmt.Fprintf(out, "Initializing squadron in %s...\n\n", absPath)

	stateDir := filepath.Join(absPath, ".squadron")
	if _, err := os.Stat(stateDir); err == nil && !initForce {
		fmt.Fprintln(out, "Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	checkPrerequisites(out, cfg)

	if !initNoGit {
		if err := ensureRepo(out, absPath); err != nil {
			return err
		}
	}

	for _, sub := range []string{"sessions", "signals", "logs"} {
		if err := os.MkdirAll(filepath.Join(stateDir, sub), 0755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	printStatus(out, "✓", "Created .squadron directory structure", color.FgGreen)

	if !initNoGit {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus(out, "✓", "Updated .gitignore", color.FgGreen)
	}

	wrote, err := writeProjectConfig(absPath, initForce)
	if err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	if wrote {
		printStatus(out, "✓", "Created .squadron.yaml template", color.FgGreen)
	}

	fmt.Fprintf(out, "\n%s squadron initialization complete!\n\n", color.GreenString("✓"))
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  squadron run \"your task here\"")
	fmt.Fprintln(out, "  squadron --help")
	return nil
}

// checkPrerequisites reports missing tools as warnings. Nothing here stops init.
func checkPrerequisites(out io.Writer, cfg *config.Config) {
	if _, err := exec.LookPath("git"); err != nil {
		printStatus(out, "⚠", "git not found in PATH (change detection uses go-git)", color.FgYellow)
	} else {
		printStatus(out, "✓", "Git found", color.FgGreen)
	}

	if cfg.Execution.Mode == config.ModeCLI {
		if _, err := exec.LookPath(cfg.Execution.ClaudePath); err != nil {
			printStatus(out, "⚠", fmt.Sprintf("%s not found (execution.mode is cli)", cfg.Execution.ClaudePath), color.FgYellow)
		} else {
			printStatus(out, "✓", "Claude Code CLI found", color.FgGreen)
		}
	}

	switch src := config.GetAPIKeySource(cfg); src {
	case config.KeySourceNone:
		printStatus(out, "⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	default:
		printStatus(out, "✓", fmt.Sprintf("Credentials found (%s)", src), color.FgGreen)
	}
}

// ensureRepo initializes a git repository unless one already exists.
func ensureRepo(out io.Writer, dir string) error {
	_, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	switch {
	case err == nil:
		printStatus(out, "✓", "Git repository exists", color.FgGreen)
		return nil
	case !errors.Is(err, gogit.ErrRepositoryNotExists):
		return fmt.Errorf("open repository: %w", err)
	}
	if _, err := gogit.PlainInit(dir, false); err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	printStatus(out, "✓", "Initialized git repository", color.FgGreen)
	return nil
}

var ignoreEntries = []string{
	".squadron/",
}

// updateGitignore appends squadron entries to .gitignore if not present.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existing string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range ignoreEntries {
		if !containsLine(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(existing)
	if len(existing) > 0 && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# squadron\n")
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}
	return os.WriteFile(gitignorePath, []byte(b.String()), 0644)
}

func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

const projectConfigTemplate = `# squadron project configuration
# Overrides ~/.config/squadron/config.yaml for this repository.

# execution:
#   mode: api            # api or cli
#   call_timeout: 0s     # 0 disables the per-call deadline

# orchestrator:
#   max_specialists: 4   # 0 turns team mode off
#   max_parallel: 0      # 0 runs every specialist at once
#   quorum: 0.5
#   analyzer: provider   # provider or heuristic
#   synthesizer: provider # provider or template

# budgets:
#   bugfix: 15
#   feature_builder: 50

# verification:
#   enabled: true
#   commands:
#     - go build ./...
#     - go test ./...
`

// writeProjectConfig writes the .squadron.yaml template. An existing file
// is only replaced with force.
func writeProjectConfig(repoPath string, force bool) (bool, error) {
	path := filepath.Join(repoPath, ".squadron.yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(projectConfigTemplate), 0644); err != nil {
		return false, err
	}
	return true, nil
}
