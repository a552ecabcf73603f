package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Status describes how a vault directory relates to an enclosing git work tree.
type Status struct {
	IsRepo  bool
	Root    string // top level of the work tree
	Tracked []string
	Ignored bool
}

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	err := cmd.Run()
	return err == nil
}

// TopLevel returns the root of the work tree containing workDir.
func TopLevel(workDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// TrackedFiles lists files under path that git tracks, relative to workDir.
func TrackedFiles(workDir, path string) []string {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return nil
	}
	return strings.Fields(string(output))
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	err := cmd.Run()

	// git check-ignore returns exit code 0 if file is ignored
	return err == nil
}

// Check inspects the vault directory. A missing git binary or a directory
// outside any work tree yields a Status with IsRepo false.
func Check(vaultDir string) (*Status, error) {
	status := &Status{}
	if !Available() {
		return status, nil
	}

	abs, err := filepath.Abs(vaultDir)
	if err != nil {
		return nil, err
	}
	// The vault may not exist yet; ask from its parent.
	workDir := filepath.Dir(abs)
	if !IsGitRepo(workDir) {
		return status, nil
	}

	status.IsRepo = true
	if status.Root, err = TopLevel(workDir); err != nil {
		return nil, err
	}
	name := filepath.Base(abs)
	status.Tracked = TrackedFiles(workDir, name)
	status.Ignored = IsIgnored(workDir, name)
	return status, nil
}

// Format renders status for display. It is empty outside a work tree.
func Format(status *Status) string {
	if status == nil || !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")
	result.WriteString(fmt.Sprintf("   vault is inside %s\n", status.Root))

	switch {
	case status.Ignored:
		result.WriteString("   ok: vault is in .gitignore\n")
	case len(status.Tracked) > 0:
		result.WriteString(fmt.Sprintf("   note: %d vault file(s) tracked by git; entries are encrypted but the vault's history will be public to the repository\n", len(status.Tracked)))
	default:
		result.WriteString("   warning: vault not in .gitignore (add it, or commit it deliberately)\n")
	}
	return result.String()
}
