package deck

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsGitSource reports whether an import argument names a git remote rather
// than a local directory.
func IsGitSource(arg string) bool {
	return strings.HasSuffix(arg, ".git") ||
		strings.HasPrefix(arg, "git@") ||
		strings.HasPrefix(arg, "https://") ||
		strings.HasPrefix(arg, "http://")
}

// syncGitSource clones the remote under baseDir on first use and pulls on
// subsequent imports, returning the local checkout path.
func syncGitSource(baseDir, remote string) (string, error) {
	localPath, err := localPathFor(baseDir, remote)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		slog.Info("cloning deck repository", "url", remote, "path", localPath)
		if _, err := git.PlainClone(localPath, false, &git.CloneOptions{URL: remote}); err != nil {
			return "", fmt.Errorf("failed to clone %s: %w", remote, err)
		}
		return localPath, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	slog.Info("pulling deck repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repo at %s: %w", localPath, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree at %s: %w", localPath, err)
	}
	if err := worktree.Pull(&git.PullOptions{RemoteName: "origin"}); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("failed to pull %s: %w", localPath, err)
	}
	return localPath, nil
}

// localPathFor maps a remote URL to a checkout directory under baseDir,
// handling both https:// and scp-style git@host:path remotes.
func localPathFor(baseDir, remote string) (string, error) {
	parsed, err := url.Parse(remote)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		return filepath.Join(baseDir, parsed.Host, strings.TrimSuffix(parsed.Path, ".git")), nil
	}

	if strings.Contains(remote, "@") {
		hostPart, repoPart, found := strings.Cut(remote, ":")
		if found {
			if _, host, ok := strings.Cut(hostPart, "@"); ok {
				return filepath.Join(baseDir, host, strings.TrimSuffix(repoPart, ".git")), nil
			}
		}
	}
	return "", fmt.Errorf("could not parse git remote %q", remote)
}
