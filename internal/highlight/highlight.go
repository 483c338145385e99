// Package highlight renders unified diffs for a terminal, with chroma syntax
// colours on the code of each changed line.
package highlight

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/fatih/color"
)

const DefaultStyle = "github-dark"

type Renderer struct {
	enabled   bool
	syntax    bool
	style     *chroma.Style
	formatter chroma.Formatter
	header    *color.Color
	hunk      *color.Color
	add       *color.Color
	del       *color.Color
}

// New returns a renderer. With enabled false the diff is copied unchanged;
// with syntax false only the +/- colouring is applied.
func New(styleName string, enabled, syntax bool) *Renderer {
	r := &Renderer{
		enabled:   enabled,
		syntax:    syntax,
		style:     styles.Get(styleName),
		formatter: formatters.Get("terminal256"),
		header:    color.New(color.Bold),
		hunk:      color.New(color.FgCyan),
		add:       color.New(color.FgGreen),
		del:       color.New(color.FgRed),
	}
	if r.style == nil {
		r.style = styles.Fallback
	}
	if r.formatter == nil {
		r.formatter = formatters.Fallback
	}
	for _, c := range []*color.Color{r.header, r.hunk, r.add, r.del} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *Renderer) Diff(w io.Writer, diff string) error {
	if !r.enabled {
		_, err := io.WriteString(w, diff)
		return err
	}
	bw := bufio.NewWriter(w)
	var lexer chroma.Lexer
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		if i == len(lines)-1 && line == "" {
			break
		}
		if path, ok := PathFromLine(line); ok {
			lexer = nil
			if r.syntax {
				lexer = lexerForPath(path)
			}
			r.header.Fprintln(bw, line)
			continue
		}
		switch {
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "index "):
			r.header.Fprintln(bw, line)
			continue
		case strings.HasPrefix(line, "@@"):
			r.hunk.Fprintln(bw, line)
			continue
		}
		code, ok := LineCode(line)
		if !ok {
			fmt.Fprintln(bw, line)
			continue
		}
		marker := r.markerColor(line[0])
		if lexer == nil || code == "" {
			if marker != nil {
				marker.Fprintln(bw, line)
			} else {
				fmt.Fprintln(bw, line)
			}
			continue
		}
		if marker != nil {
			marker.Fprint(bw, line[:1])
		} else {
			bw.WriteString(line[:1])
		}
		if err := r.code(bw, lexer, code); err != nil {
			bw.WriteString(code)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

func (r *Renderer) markerColor(b byte) *color.Color {
	switch b {
	case '+':
		return r.add
	case '-':
		return r.del
	}
	return nil
}

func (r *Renderer) code(w io.Writer, lexer chroma.Lexer, code string) error {
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}
	// code is a single line; some lexers append a newline to it
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, it); err != nil {
		return err
	}
	_, err = w.Write(bytes.ReplaceAll(buf.Bytes(), []byte("\n"), nil))
	return err
}

func lexerForPath(path string) chroma.Lexer {
	if path == "" {
		return nil
	}
	lexer := lexers.Match(path)
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}

// PathFromLine extracts the new path from a "diff --git" header. The second
// result reports whether line is such a header at all.
func PathFromLine(line string) (string, bool) {
	const prefix = "diff --git "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	tokens := lineTokens(strings.TrimSpace(line[len(prefix):]))
	if len(tokens) < 2 {
		return "", true
	}
	return normalizePath(tokens[1]), true
}

// lineTokens splits on blanks, honouring the double quotes git puts around
// paths with unusual characters.
func lineTokens(s string) []string {
	var tokens []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return tokens
		}
		if s[0] == '"' {
			var buf strings.Builder
			escaped := false
			i := 1
			for ; i < len(s); i++ {
				ch := s[i]
				if escaped {
					buf.WriteByte(ch)
					escaped = false
					continue
				}
				if ch == '\\' {
					escaped = true
					continue
				}
				if ch == '"' {
					i++
					break
				}
				buf.WriteByte(ch)
			}
			tokens = append(tokens, buf.String())
			s = s[i:]
			continue
		}
		j := strings.IndexAny(s, " \t")
		if j < 0 {
			j = len(s)
		}
		tokens = append(tokens, s[:j])
		s = s[j:]
	}
}

func normalizePath(token string) string {
	token = strings.TrimPrefix(token, "a/")
	return strings.TrimPrefix(token, "b/")
}

// LineCode returns the code of a context, added or removed line.
func LineCode(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	switch line[0] {
	case '+', '-', ' ':
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			return "", false
		}
		return line[1:], true
	}
	return "", false
}
