package git

import (
	"bytes"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/utils/binary"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pmezard/go-difflib/difflib"
)

type lineStat struct {
	Additions int
	Deletions int
}

// Blob pairs are content addressed, so a cached count never goes stale.
var lineStatCache, _ = lru.New[[2]plumbing.Hash, lineStat](4096)

func isBinaryData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	bin, err := binary.IsBinary(bytes.NewReader(data))
	return err == nil && bin
}

// countLines returns the number of added and deleted lines between two
// versions of a file. Binary content counts as 0/0.
func countLines(from, to []byte) lineStat {
	if isBinaryData(from) || isBinaryData(to) {
		return lineStat{}
	}
	a := difflib.SplitLines(string(from))
	b := difflib.SplitLines(string(to))
	if len(from) == 0 {
		a = nil
	}
	if len(to) == 0 {
		b = nil
	}
	var st lineStat
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			st.Deletions += op.I2 - op.I1
			st.Additions += op.J2 - op.J1
		case 'd':
			st.Deletions += op.I2 - op.I1
		case 'i':
			st.Additions += op.J2 - op.J1
		}
	}
	return st
}

// blobSource yields file content for a blob hash.
type blobSource func(h plumbing.Hash) ([]byte, error)

func (r *Repository) statBetween(fromHash, toHash plumbing.Hash, load blobSource) (lineStat, error) {
	key := [2]plumbing.Hash{fromHash, toHash}
	if st, ok := lineStatCache.Get(key); ok {
		return st, nil
	}
	var from, to []byte
	var err error
	if !fromHash.IsZero() {
		if from, err = load(fromHash); err != nil {
			return lineStat{}, err
		}
	}
	if !toHash.IsZero() {
		if to, err = load(toHash); err != nil {
			return lineStat{}, err
		}
	}
	st := countLines(from, to)
	lineStatCache.Add(key, st)
	return st, nil
}
