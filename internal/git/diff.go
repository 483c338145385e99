package git

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// CommitDiff renders the patch introduced by rev against its first parent;
// a root commit is compared with the empty tree. When file is not empty only
// that path is included.
func (r *Repository) CommitDiff(rev, file string) (string, error) {
	c, err := r.resolveCommit(rev)
	if err != nil {
		return "", err
	}
	tree, err := c.Tree()
	if err != nil {
		return "", unavailable("diff", err)
	}
	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return "", unavailable("diff", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return "", unavailable("diff", err)
		}
	}
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return "", unavailable("diff", err)
	}
	if file != "" {
		p, err := r.relPath(file)
		if err != nil {
			return "", &OpError{Op: "diff", Path: file, Err: err}
		}
		var filtered object.Changes
		for _, ch := range changes {
			if ch.From.Name == p || ch.To.Name == p {
				filtered = append(filtered, ch)
			}
		}
		changes = filtered
	}
	patch, err := changes.Patch()
	if err != nil {
		return "", unavailable("diff", err)
	}
	out, err := renderPatch(FormatCommitHeader(c), patch)
	if err != nil {
		return "", unavailable("diff", err)
	}
	return out, nil
}

// resolveCommit accepts anything ResolveRevision does: hashes, short hashes,
// branch and tag names, HEAD~n.
func (r *Repository) resolveCommit(rev string) (*object.Commit, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		rev = "HEAD"
	}
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, &OpError{Op: "resolve", Ref: rev, Kind: ErrRefNotFound, Err: err}
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, &OpError{Op: "resolve", Ref: rev, Kind: ErrRefNotFound, Err: err}
	}
	return c, nil
}

// StagedDiff renders HEAD to index for one file.
func (r *Repository) StagedDiff(file string) (string, error) {
	p, err := r.relPath(file)
	if err != nil {
		return "", &OpError{Op: "staged diff", Path: file, Err: err}
	}
	head, err := r.headSnapshot()
	if err != nil {
		return "", unavailable("staged diff", err)
	}
	idx, err := r.readIndex()
	if err != nil {
		return "", unavailable("staged diff", err)
	}
	from, err := r.storedSide(head, p)
	if err != nil {
		return "", unavailable("staged diff", err)
	}
	to, err := r.storedSide(indexSnapshot(idx), p)
	if err != nil {
		return "", unavailable("staged diff", err)
	}
	return filePatch(p, from, to)
}

// UnstagedDiff renders index to worktree for one file.
func (r *Repository) UnstagedDiff(file string) (string, error) {
	p, err := r.relPath(file)
	if err != nil {
		return "", &OpError{Op: "unstaged diff", Path: file, Err: err}
	}
	idx, err := r.readIndex()
	if err != nil {
		return "", unavailable("unstaged diff", err)
	}
	from, err := r.storedSide(indexSnapshot(idx), p)
	if err != nil {
		return "", unavailable("unstaged diff", err)
	}
	d, onDisk, err := r.readDisk(p)
	if err != nil {
		return "", unavailable("unstaged diff", err)
	}
	var to *patchSide
	if onDisk {
		to = &patchSide{blobRef: d.ref(), data: d.Data}
	}
	return filePatch(p, from, to)
}

// FileContent returns the committed (HEAD) content of file.
func (r *Repository) FileContent(file string) (string, error) {
	p, err := r.relPath(file)
	if err != nil {
		return "", &OpError{Op: "show", Path: file, Err: err}
	}
	head, err := r.headSnapshot()
	if err != nil {
		return "", unavailable("show", err)
	}
	side, err := r.storedSide(head, p)
	if err != nil {
		return "", unavailable("show", err)
	}
	if side == nil {
		return "", &OpError{Op: "show", Path: p, Ref: "HEAD", Kind: ErrRefNotFound}
	}
	return string(side.data), nil
}

// UntrackedContent returns the worktree content of file.
func (r *Repository) UntrackedContent(file string) (string, error) {
	p, err := r.relPath(file)
	if err != nil {
		return "", &OpError{Op: "show", Path: file, Err: err}
	}
	d, ok, err := r.readDisk(p)
	if err != nil {
		return "", unavailable("show", err)
	}
	if !ok {
		return "", &OpError{Op: "show", Path: p, Err: errors.New("file not found in worktree")}
	}
	return string(d.Data), nil
}

// patchSide is one version of a file in a local diff; nil means absent.
type patchSide struct {
	blobRef
	data []byte
}

func (r *Repository) storedSide(snap snapshot, p string) (*patchSide, error) {
	ref, ok := snap[p]
	if !ok {
		return nil, nil
	}
	if ref.Mode == filemode.Submodule {
		return &patchSide{blobRef: ref, data: []byte("Subproject commit " + ref.Hash.String() + "\n")}, nil
	}
	data, err := r.readBlob(ref.Hash)
	if err != nil {
		return nil, err
	}
	return &patchSide{blobRef: ref, data: data}, nil
}

func (s *patchSide) label(prefix, p string) string {
	if s == nil {
		return "/dev/null"
	}
	return prefix + p
}

func (s *patchSide) lines() []string {
	if s == nil || len(s.data) == 0 {
		return []string{}
	}
	return difflib.SplitLines(string(s.data))
}

// filePatch renders a git-style patch for p; identical sides give "".
func filePatch(p string, from, to *patchSide) (string, error) {
	if from == nil && to == nil {
		return "", nil
	}
	if from != nil && to != nil && from.blobRef == to.blobRef {
		return "", nil
	}
	header := []string{fmt.Sprintf("diff --git a/%s b/%s", p, p)}
	switch {
	case from == nil:
		header = append(header, "new file mode "+to.Mode.String())
	case to == nil:
		header = append(header, "deleted file mode "+from.Mode.String())
	case from.Mode != to.Mode:
		header = append(header, "old mode "+from.Mode.String(), "new mode "+to.Mode.String())
	}
	out := strings.Join(header, "\n") + "\n"
	if (from != nil && isBinaryData(from.data)) || (to != nil && isBinaryData(to.data)) {
		return out + "Binary files differ\n", nil
	}
	body, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        from.lines(),
		B:        to.lines(),
		FromFile: from.label("a/", p),
		ToFile:   to.label("b/", p),
		Context:  diff.DefaultContextLines,
	})
	if err != nil {
		return "", err
	}
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return out + body, nil
}

func renderPatch(header string, patch diff.Patch) (string, error) {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		if !strings.HasSuffix(header, "\n") {
			b.WriteByte('\n')
		}
	}
	if patch == nil || len(patch.FilePatches()) == 0 {
		return b.String(), nil
	}
	b.WriteByte('\n')
	var buf bytes.Buffer
	if err := diff.NewUnifiedEncoder(&buf, diff.DefaultContextLines).Encode(patch); err != nil {
		return "", err
	}
	b.Write(buf.Bytes())
	return b.String(), nil
}

// FormatCommitHeader renders the commit metadata block shown above a patch.
func FormatCommitHeader(c *object.Commit) string {
	lines := []string{"commit " + c.Hash.String()}
	if c.NumParents() > 1 {
		short := make([]string, 0, c.NumParents())
		for _, p := range c.ParentHashes {
			short = append(short, shortHash(p.String()))
		}
		lines = append(lines, "Merge: "+strings.Join(short, " "))
	}
	committer := c.Committer
	if committer == (object.Signature{}) {
		committer = c.Author
	}
	lines = append(lines, signatureLine("Author", c.Author), signatureLine("Committer", committer), "")
	message := strings.TrimRight(c.Message, "\n")
	if message == "" {
		message = "(no commit message)"
	}
	for line := range strings.SplitSeq(message, "\n") {
		if line != "" {
			line = "    " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n") + "\n"
}

func signatureLine(label string, sig object.Signature) string {
	line := fmt.Sprintf("%s: %s <%s>", label, sig.Name, sig.Email)
	if !sig.When.IsZero() {
		line += "  " + sig.When.Format("2006-01-02 15:04:05 -0700")
	}
	return line
}
