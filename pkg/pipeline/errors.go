package pipeline

import (
	"errors"
	"fmt"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/credentials"
	"github.com/menta2k/cat-tagline/pkg/fetcher"
)

// Stage names one step of a run
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageSave     Stage = "save"
	StageDescribe Stage = "describe"
	StageGenerate Stage = "generate"
)

// StageError tags a failure with the stage it happened in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Summary returns a short cause suitable for showing to a user
func (e *StageError) Summary() string {
	var statusErr *fetcher.StatusError
	switch {
	case errors.As(e.Err, &statusErr):
		return fmt.Sprintf("HTTP %d", statusErr.Code)
	case errors.Is(e.Err, fetcher.ErrEmptyBody):
		return fetcher.ErrEmptyBody.Error()
	case errors.Is(e.Err, fetcher.ErrTooLarge):
		return fetcher.ErrTooLarge.Error()
	case errors.Is(e.Err, fetcher.ErrNotImage):
		return fetcher.ErrNotImage.Error()
	}
	return client.Summary(e.Err)
}

// Message is the one-line text shown for a failed run
func Message(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return fmt.Sprintf("%s failed: %s", stageLabel(stageErr.Stage), stageErr.Summary())
	}
	return err.Error()
}

func stageLabel(s Stage) string {
	switch s {
	case StageFetch:
		return "Fetching the cat image"
	case StageSave:
		return "Saving the cat image"
	case StageDescribe:
		return "Describing the cat image"
	case StageGenerate:
		return "Generating the tagline"
	}
	return string(s)
}

// rejectedOr marks auth failures as a rejected credential and leaves other
// errors unchanged
func rejectedOr(err error, source string) error {
	if errors.Is(err, client.ErrAuth) {
		return credentials.Rejected(source, err)
	}
	return err
}
