package git

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	gitindex "github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// blobRef is one file of a flattened tree.
type blobRef struct {
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// snapshot maps slash-separated paths to blobs. Directories are implicit.
type snapshot map[string]blobRef

func (s snapshot) equal(other snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for p, b := range s {
		if o, ok := other[p]; !ok || o != b {
			return false
		}
	}
	return true
}

func (s snapshot) clone() snapshot {
	out := make(snapshot, len(s))
	for p, b := range s {
		out[p] = b
	}
	return out
}

func (s snapshot) paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Repository) flattenTree(tree *object.Tree) (snapshot, error) {
	out := snapshot{}
	if tree == nil {
		return out, nil
	}
	if err := r.flattenInto(tree, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) flattenInto(tree *object.Tree, prefix string, out snapshot) error {
	for _, entry := range tree.Entries {
		full := entry.Name
		if prefix != "" {
			full = prefix + "/" + entry.Name
		}
		if entry.Mode == filemode.Dir {
			sub, err := r.repo.TreeObject(entry.Hash)
			if err != nil {
				return fmt.Errorf("read tree %s: %w", full, err)
			}
			if err := r.flattenInto(sub, full, out); err != nil {
				return err
			}
			continue
		}
		out[full] = blobRef{Mode: entry.Mode, Hash: entry.Hash}
	}
	return nil
}

func (r *Repository) headSnapshot() (snapshot, error) {
	tree, err := r.headTree()
	if err != nil {
		return nil, err
	}
	return r.flattenTree(tree)
}

func (r *Repository) commitSnapshot(c *object.Commit) (snapshot, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w", shortHash(c.Hash.String()), err)
	}
	return r.flattenTree(tree)
}

func (r *Repository) readIndex() (*gitindex.Index, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return idx, nil
}

// indexSnapshot returns the stage-0 entries of the index.
func indexSnapshot(idx *gitindex.Index) snapshot {
	out := make(snapshot, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Stage != gitindex.Merged {
			continue
		}
		out[e.Name] = blobRef{Mode: e.Mode, Hash: e.Hash}
	}
	return out
}

type treeNode struct {
	dirs  map[string]*treeNode
	files []object.TreeEntry
}

func newTreeNode() *treeNode {
	return &treeNode{dirs: map[string]*treeNode{}}
}

func (n *treeNode) insert(parts []string, ref blobRef) {
	if len(parts) == 1 {
		n.files = append(n.files, object.TreeEntry{Name: parts[0], Mode: ref.Mode, Hash: ref.Hash})
		return
	}
	child, ok := n.dirs[parts[0]]
	if !ok {
		child = newTreeNode()
		n.dirs[parts[0]] = child
	}
	child.insert(parts[1:], ref)
}

// writeTree stores the nested tree objects for snap and returns the root hash.
func (r *Repository) writeTree(snap snapshot) (plumbing.Hash, error) {
	root := newTreeNode()
	for p, ref := range snap {
		root.insert(strings.Split(p, "/"), ref)
	}
	return r.writeTreeNode(root)
}

func (r *Repository) writeTreeNode(n *treeNode) (plumbing.Hash, error) {
	entries := append([]object.TreeEntry(nil), n.files...)
	for name, child := range n.dirs {
		h, err := r.writeTreeNode(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}
	// git orders directories as if their name had a trailing slash
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
	obj := r.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: entries}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store tree: %w", err)
	}
	return h, nil
}

func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func (r *Repository) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob writer: %w", err)
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}
	return h, nil
}

func (r *Repository) readBlob(h plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", shortHash(h.String()), err)
	}
	rd, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", shortHash(h.String()), err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

func (r *Repository) writeCommit(c *object.Commit) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store commit: %w", err)
	}
	return h, nil
}

func (r *Repository) hasObject(h plumbing.Hash) bool {
	return r.repo.Storer.HasEncodedObject(h) == nil
}

// diskFile is the worktree state of one path.
type diskFile struct {
	Data []byte
	Mode filemode.FileMode
	Size int64
}

func (d diskFile) hash() plumbing.Hash {
	return plumbing.ComputeHash(plumbing.BlobObject, d.Data)
}

func (d diskFile) ref() blobRef {
	return blobRef{Mode: d.Mode, Hash: d.hash()}
}

// readDisk returns ok=false when the path does not exist in the worktree.
func (r *Repository) readDisk(p string) (diskFile, bool, error) {
	fs := r.wt.Filesystem
	info, err := fs.Lstat(p)
	if errors.Is(err, os.ErrNotExist) {
		return diskFile{}, false, nil
	}
	if err != nil {
		return diskFile{}, false, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return diskFile{}, false, nil
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := fs.Readlink(p)
		if err != nil {
			return diskFile{}, false, fmt.Errorf("readlink %s: %w", p, err)
		}
		return diskFile{Data: []byte(target), Mode: filemode.Symlink, Size: int64(len(target))}, true, nil
	}
	data, err := util.ReadFile(fs, p)
	if err != nil {
		return diskFile{}, false, fmt.Errorf("read %s: %w", p, err)
	}
	mode := filemode.Regular
	if info.Mode()&0o111 != 0 {
		mode = filemode.Executable
	}
	return diskFile{Data: data, Mode: mode, Size: info.Size()}, true, nil
}

// writeDisk materializes a blob at p, replacing whatever is there. A
// submodule is not checked out here; its directory is only created.
func (r *Repository) writeDisk(p string, ref blobRef) (int64, error) {
	if ref.Mode == filemode.Submodule {
		if err := r.wt.Filesystem.MkdirAll(p, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", p, err)
		}
		return 0, nil
	}
	data, err := r.readBlob(ref.Hash)
	if err != nil {
		return 0, err
	}
	fs := r.wt.Filesystem
	if dir := path.Dir(p); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("replace %s: %w", p, err)
	}
	if ref.Mode == filemode.Symlink {
		if err := fs.Symlink(string(data), p); err != nil {
			return 0, fmt.Errorf("symlink %s: %w", p, err)
		}
		return int64(len(data)), nil
	}
	perm := os.FileMode(0o644)
	if ref.Mode == filemode.Executable {
		perm = 0o755
	}
	if err := util.WriteFile(fs, p, data, perm); err != nil {
		return 0, fmt.Errorf("write %s: %w", p, err)
	}
	return int64(len(data)), nil
}

// removeDisk deletes p and prunes directories left empty.
func (r *Repository) removeDisk(p string) error {
	fs := r.wt.Filesystem
	if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		entries, err := fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := fs.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
