// Package vcs reads version-control state of a project directory for the
// build metadata.
package vcs

import (
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DirtySuffix is appended to a revision whose worktree has uncommitted
// changes.
const DirtySuffix = "-dirty"

// Revision returns the HEAD commit hash of the repository containing dir,
// with DirtySuffix when the worktree is modified. It returns "" and no error
// when dir is not inside a repository or the repository has no commits.
func Revision(ctx context.Context, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	rev := ref.Hash().String()

	wt, err := repo.Worktree()
	if errors.Is(err, gogit.ErrIsBareRepository) {
		return rev, nil
	}
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("worktree status: %w", err)
	}
	if !status.IsClean() {
		rev += DirtySuffix
	}
	return rev, nil
}
