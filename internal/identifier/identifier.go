// Package identifier parses and builds resource identifiers of the form
//
//	scheme://authority/repository[/reference[/entity[/id]]][?query]
//
// The repository is always the first path segment. The reference segment
// selects what the identifier points at inside the repository:
//
//	master                  the repository itself (default branch)
//	commit:<sha>            a commit
//	remote:<name>           a remote
//	remote:<name>:<branch>  a branch of a remote
//	branch:<name>, <name>   a local branch
//
// Identifiers whose authority is not Authority are external and are mapped
// into the internal form with ToInternal.
package identifier

import (
	"fmt"
	"net/url"
	"strings"

	vdberrors "vdb/internal/errors"
)

const (
	// Scheme is the canonical identifier scheme
	Scheme = "vdb"
	// Authority is the canonical internal authority
	Authority = "vdb"
	// DefaultBranch names the repository's main line
	DefaultBranch = "master"

	prefixCommit = "commit:"
	prefixRemote = "remote:"
	prefixBranch = "branch:"
)

// Kind classifies what a reference segment points to
type Kind int

const (
	KindRepository Kind = iota
	KindCommit
	KindLocalBranch
	KindRemoteBranch
	KindRemote
)

// String returns the descriptor suffix used for bare references
func (k Kind) String() string {
	switch k {
	case KindRepository:
		return "repository"
	case KindCommit:
		return "commit"
	case KindLocalBranch:
		return "branch.local"
	case KindRemoteBranch:
		return "branch.remote"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Match is a parsed identifier
type Match struct {
	URI        *url.URL
	Authority  string
	Repository string
	// Reference is the branch name, commit hash or remote branch name
	Reference string
	// Remote is set for KindRemote and KindRemoteBranch
	Remote string
	Kind   Kind
	Entity string
	ID     string
}

// HasEntity reports whether the identifier addresses an entity
func (m Match) HasEntity() bool {
	return m.Entity != ""
}

// Internal reports whether the identifier uses the canonical authority
func (m Match) Internal() bool {
	return m.Authority == Authority
}

// Parse splits u into its identifier components
func Parse(u *url.URL) (Match, error) {
	if u == nil {
		return Match{}, vdberrors.New(vdberrors.CodeInvalidIdentifier, "nil identifier")
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return Match{}, invalid(u, "no repository")
	}
	segments := strings.Split(path, "/")
	if len(segments) > 4 {
		return Match{}, invalid(u, "too many path segments")
	}
	for _, s := range segments {
		if s == "" {
			return Match{}, invalid(u, "empty path segment")
		}
	}

	m := Match{
		URI:        u,
		Authority:  u.Host,
		Repository: segments[0],
		Reference:  DefaultBranch,
		Kind:       KindRepository,
	}

	if len(segments) > 1 {
		if err := parseReference(segments[1], &m); err != nil {
			return Match{}, invalid(u, err.Error())
		}
	}
	if len(segments) > 2 {
		m.Entity = segments[2]
	}
	if len(segments) > 3 {
		m.ID = segments[3]
	}

	return m, nil
}

// ParseString parses a raw identifier
func ParseString(raw string) (Match, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Match{}, vdberrors.Wrap(vdberrors.CodeInvalidIdentifier, "parse identifier", err)
	}
	return Parse(u)
}

func parseReference(ref string, m *Match) error {
	switch {
	case ref == DefaultBranch:
		m.Kind = KindRepository
		m.Reference = ref

	case strings.HasPrefix(ref, prefixCommit):
		sha := strings.TrimPrefix(ref, prefixCommit)
		if sha == "" {
			return fmt.Errorf("empty commit reference")
		}
		m.Kind = KindCommit
		m.Reference = sha

	case strings.HasPrefix(ref, prefixRemote):
		rest := strings.TrimPrefix(ref, prefixRemote)
		remote, branch, hasBranch := strings.Cut(rest, ":")
		if remote == "" {
			return fmt.Errorf("empty remote reference")
		}
		m.Remote = remote
		if hasBranch {
			if branch == "" {
				return fmt.Errorf("empty remote branch")
			}
			m.Kind = KindRemoteBranch
			m.Reference = branch
		} else {
			m.Kind = KindRemote
			m.Reference = ""
		}

	case strings.HasPrefix(ref, prefixBranch):
		name := strings.TrimPrefix(ref, prefixBranch)
		if name == "" {
			return fmt.Errorf("empty branch reference")
		}
		m.Kind = KindLocalBranch
		m.Reference = name

	default:
		m.Kind = KindLocalBranch
		m.Reference = ref
	}
	return nil
}

func invalid(u *url.URL, reason string) error {
	return vdberrors.WithMetadata(vdberrors.CodeInvalidIdentifier,
		fmt.Sprintf("invalid identifier %s: %s", u, reason),
		map[string]string{"identifier": u.String()})
}
