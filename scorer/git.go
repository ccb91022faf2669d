package scorer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// gitOutput runs one git command inside repo and returns its stdout.
func gitOutput(ctx context.Context, repo string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repo
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("git %s failed: %w (%s)", strings.Join(args, " "), err, msg)
	}
	return string(out), nil
}

// validateRepo checks that path is inside a git work tree.
func validateRepo(ctx context.Context, path string) error {
	if _, err := gitOutput(ctx, path, "rev-parse", "--git-dir"); err != nil {
		return fmt.Errorf("%s is not a git repository: %w", path, err)
	}
	return nil
}
