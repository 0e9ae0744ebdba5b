package core

import "fmt"

// Error taxonomy for the ingestion and answer flow. Each type wraps the
// provider cause so callers can errors.As on the category and still unwrap
// the original failure.

// FetchError covers bad URLs, network failures and unsupported providers.
// Always fatal to the ingestion run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError covers unreadable containers and codecs. Fatal when raised
// from frame sampling; a missing audio track is reported with NoAudio set
// and handled as an empty transcript instead of aborting the run.
type DecodeError struct {
	Path    string
	NoAudio bool
	Err     error
}

func (e *DecodeError) Error() string {
	if e.NoAudio {
		return fmt.Sprintf("decode %s: no audio track: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RecognitionError covers unintelligible audio and unreachable speech
// services. Never fatal: the transcript is recorded as empty and the error
// logged.
type RecognitionError struct {
	AudioPath string
	Err       error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.AudioPath, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// NotIndexedError is returned when the knowledge index is queried before a
// successful build. Programmer error, always fatal.
type NotIndexedError struct{}

func (e *NotIndexedError) Error() string { return "knowledge index queried before build" }

// GenerationError covers model-call failures (rate limit, network,
// malformed response). Fatal to the turn only; the session stays usable and
// the same turn may be retried by the caller. No internal retry.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generate answer: %v", e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }
