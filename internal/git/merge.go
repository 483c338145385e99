package git

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// mergeSnapshots combines the changes base→ours and base→theirs path by path.
// A path changed on both sides is merged line by line when both versions are
// text; anything else changed on both sides is a conflict. Merged blobs are
// written to the object store, which is harmless if the caller gives up.
func (r *Repository) mergeSnapshots(base, ours, theirs snapshot) (snapshot, []string, error) {
	all := map[string]bool{}
	for _, s := range []snapshot{base, ours, theirs} {
		for p := range s {
			all[p] = true
		}
	}
	paths := make([]string, 0, len(all))
	for p := range all {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	merged := snapshot{}
	var conflicts []string
	for _, p := range paths {
		b, inBase := base[p]
		o, inOurs := ours[p]
		t, inTheirs := theirs[p]
		switch {
		case sameSide(o, inOurs, t, inTheirs):
			if inOurs {
				merged[p] = o
			}
		case sameSide(b, inBase, o, inOurs):
			if inTheirs {
				merged[p] = t
			}
		case sameSide(b, inBase, t, inTheirs):
			if inOurs {
				merged[p] = o
			}
		case inBase && inOurs && inTheirs:
			ref, ok, err := r.mergeFile(b, o, t)
			if err != nil {
				return nil, nil, fmt.Errorf("merge %s: %w", p, err)
			}
			if !ok {
				conflicts = append(conflicts, p)
				continue
			}
			merged[p] = ref
		default:
			// add/add with different content, or modify/delete
			conflicts = append(conflicts, p)
		}
	}
	r.log.Debug("merged trees", slog.Int("paths", len(merged)), slog.Int("conflicts", len(conflicts)))
	return merged, conflicts, nil
}

func sameSide(a blobRef, inA bool, b blobRef, inB bool) bool {
	if inA != inB {
		return false
	}
	return !inA || a == b
}

func (r *Repository) mergeFile(base, ours, theirs blobRef) (blobRef, bool, error) {
	for _, m := range []filemode.FileMode{base.Mode, ours.Mode, theirs.Mode} {
		// symlink targets and submodule commits have no lines to merge
		if m == filemode.Symlink || m == filemode.Submodule {
			return blobRef{}, false, nil
		}
	}
	mode := ours.Mode
	if ours.Mode == base.Mode {
		mode = theirs.Mode
	} else if theirs.Mode != base.Mode && theirs.Mode != ours.Mode {
		return blobRef{}, false, nil
	}
	if ours.Hash == theirs.Hash {
		return blobRef{Mode: mode, Hash: ours.Hash}, true, nil
	}
	var data [3][]byte
	for i, h := range [...]blobRef{base, ours, theirs} {
		content, err := r.readBlob(h.Hash)
		if err != nil {
			return blobRef{}, false, err
		}
		data[i] = content
	}
	out, ok := mergeText(string(data[0]), string(data[1]), string(data[2]))
	if !ok {
		return blobRef{}, false, nil
	}
	h, err := r.writeBlob([]byte(out))
	if err != nil {
		return blobRef{}, false, err
	}
	return blobRef{Mode: mode, Hash: h}, true, nil
}

// mergeText replays the line edits base→theirs on top of ours. It fails
// when the two sides touch the same or adjacent base lines, or when either
// side is binary.
func mergeText(base, ours, theirs string) (string, bool) {
	if isBinaryData([]byte(base)) || isBinaryData([]byte(ours)) || isBinaryData([]byte(theirs)) {
		return "", false
	}
	oursEdits := lineEdits(base, ours)
	theirsEdits := lineEdits(base, theirs)
	for _, a := range oursEdits {
		for _, b := range theirsEdits {
			if a.from <= b.to && b.from <= a.to {
				return "", false
			}
		}
	}
	edits := append(oursEdits, theirsEdits...)
	sort.Slice(edits, func(i, j int) bool { return edits[i].from < edits[j].from })
	baseLines := splitLines(base)
	var b strings.Builder
	pos := 0
	for _, e := range edits {
		for _, line := range baseLines[pos:e.from] {
			b.WriteString(line)
		}
		b.WriteString(e.text)
		pos = e.to
	}
	for _, line := range baseLines[pos:] {
		b.WriteString(line)
	}
	return b.String(), true
}

// lineEdit replaces base lines [from, to) with text. Insertions have
// from == to.
type lineEdit struct {
	from, to int
	text     string
}

func lineEdits(base, other string) []lineEdit {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(base, other)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	var out []lineEdit
	pos := 0
	open := false
	for _, d := range diffs {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
			open = false
		case diffmatchpatch.DiffDelete:
			if !open {
				out = append(out, lineEdit{from: pos, to: pos})
				open = true
			}
			pos += n
			out[len(out)-1].to = pos
		case diffmatchpatch.DiffInsert:
			if !open {
				out = append(out, lineEdit{from: pos, to: pos})
				open = true
			}
			out[len(out)-1].text += d.Text
		}
	}
	return out
}

// splitLines keeps line terminators; a final line without one is kept too.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
