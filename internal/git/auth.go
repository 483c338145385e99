package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/thiagokokada/gitcore/internal/git/credhelper"
)

// CredentialType is a set of authentication kinds a remote accepts.
type CredentialType uint8

const (
	CredentialDefault CredentialType = 1 << iota
	CredentialSSHKey
	CredentialUserPass
)

func (t CredentialType) Has(o CredentialType) bool { return t&o != 0 }

func (t CredentialType) String() string {
	var parts []string
	if t.Has(CredentialDefault) {
		parts = append(parts, "default")
	}
	if t.Has(CredentialSSHKey) {
		parts = append(parts, "ssh-key")
	}
	if t.Has(CredentialUserPass) {
		parts = append(parts, "userpass")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Challenge is what the remote asked for: the URL being contacted, the
// username it names (if any) and the credential kinds it accepts.
type Challenge struct {
	URL      string
	Username string
	Allowed  CredentialType
}

// Strategy produces a credential of one kind.
type Strategy interface {
	Type() CredentialType
	Credential(ctx context.Context, ch Challenge) (transport.AuthMethod, error)
}

// Feedback is implemented by strategies that want to know whether the
// credential they produced was accepted. Errors are logged and otherwise
// ignored.
type Feedback interface {
	Accepted(ctx context.Context, ch Challenge, auth transport.AuthMethod) error
	Rejected(ctx context.Context, ch Challenge, auth transport.AuthMethod) error
}

// CredentialHelper is the lookup behind the username/password strategy.
// *credhelper.Helper implements it.
type CredentialHelper interface {
	Fill(ctx context.Context, req credhelper.Credential) (credhelper.Credential, error)
	Approve(ctx context.Context, c credhelper.Credential) error
	Reject(ctx context.Context, c credhelper.Credential) error
}

// DefaultStrategies is the negotiation order: the ambient credential, then
// an SSH agent key, then the credential helper when one is configured.
func DefaultStrategies(sshUser string, helper CredentialHelper) []Strategy {
	chain := []Strategy{AmbientCredential{}, SSHAgentCredential{User: sshUser}}
	if helper != nil {
		chain = append(chain, HelperCredential{Helper: helper})
	}
	return chain
}

// AmbientCredential lets the transport use whatever it finds on its own:
// no credential at all for local and anonymous remotes.
type AmbientCredential struct{}

func (AmbientCredential) Type() CredentialType { return CredentialDefault }

func (AmbientCredential) Credential(context.Context, Challenge) (transport.AuthMethod, error) {
	return nil, nil
}

// SSHAgentCredential authenticates with the keys held by the running agent.
type SSHAgentCredential struct {
	User string
}

func (SSHAgentCredential) Type() CredentialType { return CredentialSSHKey }

func (s SSHAgentCredential) Credential(_ context.Context, ch Challenge) (transport.AuthMethod, error) {
	user := ch.Username
	if user == "" {
		user = s.User
	}
	if user == "" {
		user = DefaultSSHUser
	}
	auth, err := gitssh.NewSSHAgentAuth(user)
	if err != nil {
		return nil, fmt.Errorf("ssh agent: %w", err)
	}
	return auth, nil
}

// HelperCredential looks up a username and password for the remote URL.
type HelperCredential struct {
	Helper CredentialHelper
}

func (HelperCredential) Type() CredentialType { return CredentialUserPass }

func (h HelperCredential) Credential(ctx context.Context, ch Challenge) (transport.AuthMethod, error) {
	req, err := credhelper.FromURL(ch.URL)
	if err != nil {
		return nil, err
	}
	if ch.Username != "" {
		req.Username = ch.Username
	}
	c, err := h.Helper.Fill(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("credential helper: %w", err)
	}
	return &githttp.BasicAuth{Username: c.Username, Password: c.Password}, nil
}

func (h HelperCredential) Accepted(ctx context.Context, ch Challenge, auth transport.AuthMethod) error {
	c, ok := h.record(ch, auth)
	if !ok {
		return nil
	}
	if err := h.Helper.Approve(ctx, c); err != nil {
		return fmt.Errorf("approve credential: %w", err)
	}
	return nil
}

func (h HelperCredential) Rejected(ctx context.Context, ch Challenge, auth transport.AuthMethod) error {
	c, ok := h.record(ch, auth)
	if !ok {
		return nil
	}
	if err := h.Helper.Reject(ctx, c); err != nil {
		return fmt.Errorf("reject credential: %w", err)
	}
	return nil
}

func (h HelperCredential) record(ch Challenge, auth transport.AuthMethod) (credhelper.Credential, bool) {
	basic, ok := auth.(*githttp.BasicAuth)
	if !ok {
		return credhelper.Credential{}, false
	}
	c, err := credhelper.FromURL(ch.URL)
	if err != nil {
		return credhelper.Credential{}, false
	}
	c.Username, c.Password = basic.Username, basic.Password
	return c, true
}

// initialChallenge is what a remote at url is expected to ask for before it
// has said anything: a key for SSH remotes, nothing for the rest.
func initialChallenge(url, sshUser string) Challenge {
	ch := Challenge{URL: url, Allowed: CredentialDefault}
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return ch
	}
	ch.Username = ep.User
	if ep.Protocol == "ssh" {
		ch.Allowed = CredentialSSHKey
		if ch.Username == "" {
			ch.Username = sshUser
		}
	}
	return ch
}

func isAuthError(err error) bool {
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain")
}

// negotiator walks the strategy chain for one network operation. Nothing is
// cached between operations.
type negotiator struct {
	strategies []Strategy
	log        *slog.Logger
}

func (r *Repository) negotiator() *negotiator {
	chain := r.strategies
	if chain == nil {
		chain = DefaultStrategies(r.sshUser, r.helper)
	}
	return &negotiator{strategies: chain, log: r.log}
}

func (n *negotiator) pick(allowed CredentialType) Strategy {
	for _, s := range n.strategies {
		if s.Type().Has(allowed) {
			return s
		}
	}
	return nil
}

// run calls attempt with the credential chosen for each challenge. The
// remote answering an anonymous attempt with an authentication error counts
// as a username/password challenge; any other rejected credential ends the
// negotiation with ErrAuthenticationExhausted. Errors unrelated to
// authentication are returned unchanged.
func (n *negotiator) run(ctx context.Context, ch Challenge, attempt func(transport.AuthMethod) error) error {
	offered := CredentialType(0)
	for {
		s := n.pick(ch.Allowed)
		if s == nil {
			return fmt.Errorf("%w: no strategy accepts %s", ErrAuthenticationExhausted, ch.Allowed)
		}
		offered |= s.Type()
		n.log.Debug("credential attempt", slog.String("url", ch.URL), slog.String("allowed", ch.Allowed.String()),
			slog.String("strategy", s.Type().String()))
		auth, err := s.Credential(ctx, ch)
		if err != nil {
			return fmt.Errorf("%w: %s credential: %v", ErrAuthenticationExhausted, s.Type(), err)
		}
		err = attempt(auth)
		if err == nil || !isAuthError(err) {
			if fb, ok := s.(Feedback); ok && (err == nil || errors.Is(err, gitlib.NoErrAlreadyUpToDate)) {
				n.feedback(fb.Accepted(ctx, ch, auth))
			}
			return err
		}
		if fb, ok := s.(Feedback); ok {
			n.feedback(fb.Rejected(ctx, ch, auth))
		}
		n.log.Debug("credential rejected", slog.String("strategy", s.Type().String()), slog.Any("error", err))
		if s.Type() == CredentialDefault && !offered.Has(CredentialUserPass) {
			ch.Allowed = CredentialUserPass
			continue
		}
		return fmt.Errorf("%w: %v", ErrAuthenticationExhausted, err)
	}
}

func (n *negotiator) feedback(err error) {
	if err != nil {
		n.log.Debug("credential feedback failed", slog.Any("error", err))
	}
}
