// Package gitsource keeps local checkouts of remote markdown repositories.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones repoURL into localPath, or pulls the latest changes when a
// checkout already exists there.
func Sync(ctx context.Context, repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("cloning repository", "url", repoURL, "path", localPath)
		if _, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: repoURL}); err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}

	case err == nil:
		slog.Info("pulling repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}

// IsRemote reports whether source looks like a git URL rather than a path.
func IsRemote(source string) bool {
	if strings.HasPrefix(source, "git@") {
		return true
	}
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh" || u.Scheme == "git"
}

// LocalPath maps a repository URL to a directory under baseDir, so that
// https://github.com/a/b.git becomes baseDir/github.com/a/b.
func LocalPath(baseDir, repoURL string) (string, error) {
	if rest, ok := strings.CutPrefix(repoURL, "git@"); ok {
		host, repoPath, found := strings.Cut(rest, ":")
		if !found || host == "" || repoPath == "" {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
	}

	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return filepath.Join(baseDir, u.Host, strings.TrimSuffix(u.Path, ".git")), nil
}
