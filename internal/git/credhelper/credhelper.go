// Package credhelper talks to the user's configured git credential helpers
// through `git credential fill|approve|reject`.
package credhelper

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

var ErrNoCredential = errors.New("credential helper returned no credential")

var defaultPorts = map[string]int{"ssh": 22, "http": 80, "https": 443, "git": 9418}

// Credential is one record of the credential protocol.
type Credential struct {
	Protocol string
	Host     string
	Path     string
	Username string
	Password string
}

// FromURL builds the lookup record for a remote URL. scp-like SSH addresses
// are accepted as well.
func FromURL(raw string) (Credential, error) {
	ep, err := transport.NewEndpoint(raw)
	if err != nil {
		return Credential{}, fmt.Errorf("parse remote url: %w", err)
	}
	host := ep.Host
	if ep.Port != 0 && ep.Port != defaultPorts[ep.Protocol] {
		host = fmt.Sprintf("%s:%d", ep.Host, ep.Port)
	}
	return Credential{
		Protocol: ep.Protocol,
		Host:     host,
		Path:     strings.TrimPrefix(ep.Path, "/"),
		Username: ep.User,
		Password: ep.Password,
	}, nil
}

// Encode renders c in the key=value line format of the protocol.
func (c Credential) Encode() []byte {
	var b bytes.Buffer
	write := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s=%s\n", k, v)
		}
	}
	write("protocol", c.Protocol)
	write("host", c.Host)
	write("path", c.Path)
	write("username", c.Username)
	write("password", c.Password)
	b.WriteByte('\n')
	return b.Bytes()
}

// Decode parses helper output, keeping fields of base that the output does
// not mention.
func Decode(base Credential, data []byte) (Credential, error) {
	out := base
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Credential{}, fmt.Errorf("malformed credential line %q", line)
		}
		switch key {
		case "protocol":
			out.Protocol = value
		case "host":
			out.Host = value
		case "path":
			out.Path = value
		case "username":
			out.Username = value
		case "password":
			out.Password = value
		}
	}
	if err := sc.Err(); err != nil {
		return Credential{}, fmt.Errorf("read credential: %w", err)
	}
	return out, nil
}

// Runner executes `git credential <action>` with input on stdin.
type Runner func(ctx context.Context, dir, action string, input []byte) ([]byte, error)

// Helper is a credential helper client bound to a working directory, so that
// repository-local helper configuration applies.
type Helper struct {
	Dir string
	Run Runner
}

func New(dir string) *Helper {
	return &Helper{Dir: dir, Run: runGitCredential}
}

// Fill asks the helpers for a username and password for req. The terminal is
// never prompted.
func (h *Helper) Fill(ctx context.Context, req Credential) (Credential, error) {
	out, err := h.run(ctx, "fill", req)
	if err != nil {
		return Credential{}, err
	}
	c, err := Decode(req, out)
	if err != nil {
		return Credential{}, err
	}
	if c.Password == "" {
		return Credential{}, ErrNoCredential
	}
	return c, nil
}

// Approve tells the helpers that c was accepted by the remote.
func (h *Helper) Approve(ctx context.Context, c Credential) error {
	_, err := h.run(ctx, "approve", c)
	return err
}

// Reject tells the helpers to forget c.
func (h *Helper) Reject(ctx context.Context, c Credential) error {
	_, err := h.run(ctx, "reject", c)
	return err
}

func (h *Helper) run(ctx context.Context, action string, c Credential) ([]byte, error) {
	run := h.Run
	if run == nil {
		run = runGitCredential
	}
	return run(ctx, h.Dir, action, c.Encode())
}

func runGitCredential(ctx context.Context, dir, action string, input []byte) ([]byte, error) {
	args := []string{"credential", action}
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GCM_INTERACTIVE=never")
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("git credential %s: %v: %s", action, err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("git credential %s: %w", action, err)
	}
	return stdout.Bytes(), nil
}
