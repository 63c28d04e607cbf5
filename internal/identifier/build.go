package identifier

import (
	"net/url"
	"strings"
)

// RepositoryURI addresses a repository as a whole
func RepositoryURI(authority, repository string) *url.URL {
	return build(authority, repository)
}

// BranchURI addresses a local branch. The default branch addresses the
// repository itself
func BranchURI(authority, repository, branch string) *url.URL {
	ref := branch
	if strings.Contains(branch, ":") || strings.HasPrefix(branch, prefixBranch) {
		ref = prefixBranch + branch
	}
	return build(authority, repository, ref)
}

// CommitURI addresses a commit
func CommitURI(authority, repository, sha string) *url.URL {
	return build(authority, repository, prefixCommit+sha)
}

// RemoteURI addresses a remote
func RemoteURI(authority, repository, remote string) *url.URL {
	return build(authority, repository, prefixRemote+remote)
}

// RemoteBranchURI addresses a branch of a remote
func RemoteBranchURI(authority, repository, remote, branch string) *url.URL {
	return build(authority, repository, prefixRemote+remote+":"+branch)
}

// EntityURI appends an entity segment to a reference identifier
func EntityURI(base *url.URL, entity string) *url.URL {
	return WithID(base, entity)
}

// WithID appends a single path segment to base
func WithID(base *url.URL, segment string) *url.URL {
	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + "/" + segment
	u.RawPath = ""
	return &u
}

// ToInternal rewrites an external identifier into the internal addressing
// scheme. The original authority becomes the leading path segment; scheme and
// query are preserved
func ToInternal(u *url.URL) *url.URL {
	return &url.URL{
		Scheme:   u.Scheme,
		Host:     Authority,
		Path:     "/" + u.Host + u.Path,
		RawQuery: u.RawQuery,
	}
}

func build(authority string, segments ...string) *url.URL {
	return &url.URL{
		Scheme: Scheme,
		Host:   authority,
		Path:   "/" + strings.Join(segments, "/"),
	}
}
