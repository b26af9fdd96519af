package credentials

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultKeyName is the variable the API key is stored under in every source
const DefaultKeyName = "OPENAI_API_KEY"

// DefaultLocalFile is the local secret file read by the file source
const DefaultLocalFile = ".env"

var (
	// ErrNotFound is returned by a source that does not hold the key
	ErrNotFound = errors.New("credential not found")
	// ErrRejected marks a resolved credential that the model service refused
	ErrRejected = errors.New("credential rejected")
)

// Credential is an API key. It never prints its value.
type Credential string

// String returns a redacted form safe for logs
func (c Credential) String() string {
	if c == "" {
		return "<none>"
	}
	return "<redacted>"
}

// GoString keeps %#v from leaking the value
func (c Credential) GoString() string { return c.String() }

// Value returns the raw key
func (c Credential) Value() string { return string(c) }

// State is a step of credential resolution
type State int

const (
	Unresolved State = iota
	LocalFileFound
	HostedSecretFound
	UserPromptPending
	Resolved
	Unavailable
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case LocalFileFound:
		return "local_file_found"
	case HostedSecretFound:
		return "hosted_secret_found"
	case UserPromptPending:
		return "user_prompt_pending"
	case Resolved:
		return "resolved"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Kind groups sources by where the key lives
type Kind int

const (
	KindFile Kind = iota
	KindHosted
	KindPrompt
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindHosted:
		return "hosted"
	case KindPrompt:
		return "prompt"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// foundState is the state entered when a source of kind k yields a key
func (k Kind) foundState() State {
	switch k {
	case KindFile:
		return LocalFileFound
	case KindHosted:
		return HostedSecretFound
	}
	return UserPromptPending
}

// Reason tells why no usable credential exists
type Reason int

const (
	// ReasonAbsent means no source held a key
	ReasonAbsent Reason = iota
	// ReasonPending means only the interactive prompt is left
	ReasonPending
	// ReasonRejected means a key was found but the model service refused it
	ReasonRejected
)

func (r Reason) String() string {
	switch r {
	case ReasonAbsent:
		return "absent"
	case ReasonPending:
		return "pending"
	case ReasonRejected:
		return "rejected"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// CredentialError reports a missing or refused credential
type CredentialError struct {
	Reason Reason
	Key    string
	// Hint is an instruction for the user, e.g. which file to create
	Hint string
	Err  error
}

func (e *CredentialError) Error() string {
	var b strings.Builder
	key := e.Key
	if key == "" {
		key = DefaultKeyName
	}
	switch e.Reason {
	case ReasonRejected:
		fmt.Fprintf(&b, "%s was rejected by the model service", key)
	case ReasonPending:
		fmt.Fprintf(&b, "%s must be entered to continue", key)
	default:
		fmt.Fprintf(&b, "%s not found", key)
	}
	if e.Hint != "" {
		b.WriteString(": ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrRejected and ErrNotFound by reason
func (e *CredentialError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Reason == ReasonRejected
	case ErrNotFound:
		return e.Reason == ReasonAbsent
	}
	return false
}

// Rejected wraps a model authentication failure caused by a resolved key
func Rejected(source string, err error) error {
	hint := "check that the key is valid and active"
	if source != "" {
		hint = fmt.Sprintf("check the key supplied by %s", source)
	}
	return &CredentialError{Reason: ReasonRejected, Hint: hint, Err: err}
}

// LocalFileHint is the instruction shown when the CLI finds no key
func LocalFileHint(path, key string) string {
	if path == "" {
		path = DefaultLocalFile
	}
	if key == "" {
		key = DefaultKeyName
	}
	return fmt.Sprintf("set %s=<your key> in the %s file", key, path)
}
