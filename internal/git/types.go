package git

import "time"

type Signature struct {
	Name  string    `json:"name" yaml:"name"`
	Email string    `json:"email" yaml:"email"`
	When  time.Time `json:"when" yaml:"when"`
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
	ChangeCopied   ChangeKind = "copied"
	ChangeUnknown  ChangeKind = "unknown"
)

type ChangeEntry struct {
	Path      string     `json:"path" yaml:"path"`
	OldPath   string     `json:"old_path,omitempty" yaml:"old_path,omitempty"`
	Kind      ChangeKind `json:"kind" yaml:"kind"`
	Additions int        `json:"additions" yaml:"additions"`
	Deletions int        `json:"deletions" yaml:"deletions"`
}

type Status struct {
	Staged    []ChangeEntry `json:"staged" yaml:"staged"`
	Unstaged  []ChangeEntry `json:"unstaged" yaml:"unstaged"`
	Untracked []string      `json:"untracked" yaml:"untracked"`
}

// Clean reports whether nothing is staged, modified or untracked.
func (s Status) Clean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Untracked) == 0
}

type Branch struct {
	Name      string `json:"name" yaml:"name"`
	IsCurrent bool   `json:"is_current" yaml:"is_current"`
	IsRemote  bool   `json:"is_remote" yaml:"is_remote"`
	Hash      string `json:"hash" yaml:"hash"`
}

type CommitInfo struct {
	ID      string    `json:"id" yaml:"id"`
	ShortID string    `json:"short_id" yaml:"short_id"`
	Message string    `json:"message" yaml:"message"`
	Author  string    `json:"author" yaml:"author"`
	Email   string    `json:"email" yaml:"email"`
	Date    string    `json:"date" yaml:"date"`
	When    time.Time `json:"when" yaml:"when"`
	Parents []string  `json:"parents,omitempty" yaml:"parents,omitempty"`
	Graph   string    `json:"graph,omitempty" yaml:"graph,omitempty"`
}

type HeadState struct {
	Hash     string
	Branch   string
	Detached bool
	Unborn   bool
}

// Name returns the branch name, or "detached" when HEAD is not on a branch.
func (h HeadState) Name() string {
	if h.Detached {
		return "detached"
	}
	return h.Branch
}

type Upstream struct {
	Remote string `json:"remote" yaml:"remote"`
	Branch string `json:"branch" yaml:"branch"`
}

func (u Upstream) String() string {
	return u.Remote + "/" + u.Branch
}

type StashEntry struct {
	Index   int       `json:"index" yaml:"index"`
	ID      string    `json:"id" yaml:"id"`
	Message string    `json:"message" yaml:"message"`
	Branch  string    `json:"branch" yaml:"branch"`
	When    time.Time `json:"when" yaml:"when"`
}

func (s StashEntry) ShortID() string { return shortHash(s.ID) }

type FetchResult struct {
	Remote    string `json:"remote" yaml:"remote"`
	URL       string `json:"url" yaml:"url"`
	Refspec   string `json:"refspec" yaml:"refspec"`
	Updated   bool   `json:"updated" yaml:"updated"`
	RemoteRef string `json:"remote_ref" yaml:"remote_ref"`
	Hash      string `json:"hash,omitempty" yaml:"hash,omitempty"`
}

type PullOutcome string

const (
	PullUpToDate    PullOutcome = "up-to-date"
	PullFastForward PullOutcome = "fast-forward"
	PullMerged      PullOutcome = "merged"
)

type PullResult struct {
	Outcome PullOutcome `json:"outcome" yaml:"outcome"`
	Fetch   FetchResult `json:"fetch" yaml:"fetch"`
	Head    string      `json:"head" yaml:"head"`
	Message string      `json:"message" yaml:"message"`
}

type PushResult struct {
	Remote      string `json:"remote" yaml:"remote"`
	URL         string `json:"url" yaml:"url"`
	Refspec     string `json:"refspec" yaml:"refspec"`
	UpToDate    bool   `json:"up_to_date" yaml:"up_to_date"`
	UpstreamSet bool   `json:"upstream_set" yaml:"upstream_set"`
	Head        string `json:"head" yaml:"head"`
}

type StashApplyOutcome string

const (
	StashApplied        StashApplyOutcome = "applied"
	StashAlreadyApplied StashApplyOutcome = "already-applied"
)

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
