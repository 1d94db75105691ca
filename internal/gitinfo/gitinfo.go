// Package gitinfo provides best-effort current-branch and project-name
// detection for a working-directory path, used to fill in the "project"
// and "git_branch" metadata fields when a decoded source record omits
// them. Detection is always best-effort: any failure (not a git repo, a
// bare repo, detached HEAD) yields zero-value results rather than an
// error, matching spec.md's documented empty-string fallback for these
// fields.
//
// Grounded on the teacher's pkg/checkpoint/branch.go (detectGitBranch)
// and internal/repository/service.go (detectGitBranch's parent-directory
// fallback), merged into one call and generalized from "branch only" to
// "branch and enclosing repository name," with the teacher's manual
// parent-directory walk replaced by go-git's own DetectDotGit open option.
package gitinfo

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// Info holds what was detected for a path. Either field may be empty if
// detection was not possible.
type Info struct {
	// Project is the base name of the repository's working-tree root.
	Project string
	// Branch is the short name of the currently checked-out branch, empty
	// for a detached HEAD or a bare repository.
	Branch string
}

// Detect walks up from path (a file or directory) looking for an
// enclosing git repository and reports its working-tree name and current
// branch. It never returns an error: callers that can't use git metadata
// simply get a zero-value Info, per spec.md's empty-string fallback for
// project/git_branch.
func Detect(path string) Info {
	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}
	}

	var result Info

	if wt, err := repo.Worktree(); err == nil {
		result.Project = filepath.Base(wt.Filesystem.Root())
	}

	head, err := repo.Head()
	if err != nil {
		return result
	}
	if head.Name().IsBranch() {
		result.Branch = head.Name().Short()
	}

	return result
}

// Enrich fills c.Project and c.GitBranch, when the decoder left either
// empty, from the nearest enclosing git repository of sourcePath: c.Cwd
// if the decoder recorded one (the agent source's recorder process
// working directory), falling back to sourcePath itself (the file or
// archive the decoder read), since web-export and memory-file sources
// carry no notion of a recorder working directory but still live
// somewhere on disk that may be inside a repository worth naming.
func Enrich(c model.Conversation, sourcePath string) model.Conversation {
	if c.Project != "" && c.GitBranch != "" {
		return c
	}

	lookupPath := c.Cwd
	if lookupPath == "" {
		lookupPath = sourcePath
	}
	if lookupPath == "" {
		return c
	}

	info := Detect(lookupPath)
	if c.Project == "" && info.Project != "" {
		c.Project = info.Project
	}
	if c.GitBranch == "" && info.Branch != "" {
		c.GitBranch = info.Branch
	}
	return c
}
