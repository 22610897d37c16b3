package github

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// RepoLister resolves repository masks.
type RepoLister interface {
	RepositoryByName(ctx context.Context, fullName string) (Repository, error)
	OwnerRepositories(ctx context.Context, owner string) ([]Repository, error)
}

// Unmask expands repository masks into concrete repositories.
//
// Mask forms:
//
//	owner/name    one repository
//	owner/*       every repository of owner (any path.Match glob in the name)
//	-owner/name   exclude matching repositories (globs allowed)
//
// Order follows the masks; duplicates are dropped. Matching is case-insensitive.
func Unmask(ctx context.Context, l RepoLister, masks []string) ([]Repository, error) {
	var includes, excludes []string
	for _, m := range masks {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		neg := strings.HasPrefix(m, "-")
		m = strings.ToLower(strings.TrimPrefix(m, "-"))
		if _, _, ok := strings.Cut(m, "/"); !ok {
			return nil, fmt.Errorf("invalid repository mask %q: expected owner/name", m)
		}
		if _, err := path.Match(m, ""); err != nil {
			return nil, fmt.Errorf("invalid repository mask %q: %w", m, err)
		}
		if neg {
			excludes = append(excludes, m)
		} else {
			includes = append(includes, m)
		}
	}

	seen := map[int64]bool{}
	var out []Repository
	add := func(r Repository) {
		if seen[r.ID] || excluded(r.FullName, excludes) {
			return
		}
		seen[r.ID] = true
		out = append(out, r)
	}

	for _, m := range includes {
		owner, name, _ := strings.Cut(m, "/")
		if !strings.ContainsAny(name, "*?[") {
			r, err := l.RepositoryByName(ctx, m)
			if err != nil {
				return nil, fmt.Errorf("unmask %s: %w", m, err)
			}
			add(r)
			continue
		}
		repos, err := l.OwnerRepositories(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("unmask %s: %w", m, err)
		}
		for _, r := range repos {
			if ok, _ := path.Match(m, strings.ToLower(r.FullName)); ok {
				add(r)
			}
		}
	}
	return out, nil
}

func excluded(fullName string, excludes []string) bool {
	name := strings.ToLower(fullName)
	for _, x := range excludes {
		if ok, _ := path.Match(x, name); ok {
			return true
		}
	}
	return false
}
