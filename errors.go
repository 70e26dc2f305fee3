package autogen

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeConfigInconsistent = "CONFIG_INCONSISTENT"
	ErrCodeInvalidConfig      = "CONFIG_INVALID"
	ErrCodeCollaborator       = "COLLABORATOR_FAILED"
	ErrCodeUnknownState       = "UNKNOWN_STATE"
	ErrCodePollLimit          = "POLL_LIMIT_REACHED"
)

var (
	// ErrConfigInconsistent marks two job descriptions that differ on a key
	// that may change computed results.
	ErrConfigInconsistent = apperrors.New("unsafe update; new setting affects accuracy", apperrors.CategoryConflict).
				WithTextCode(ErrCodeConfigInconsistent)
	ErrInvalidConfig = apperrors.New("invalid job configuration", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidConfig)
	ErrCollaborator = apperrors.New("collaborator failed", apperrors.CategoryExternal).
			WithTextCode(ErrCodeCollaborator)
	ErrUnknownState = apperrors.New("unknown lifecycle state", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeUnknownState)
	ErrPollLimit = apperrors.New("poll limit reached", apperrors.CategoryHandler).
			WithTextCode(ErrCodePollLimit)
)

// NewError clones a sentinel, replacing its message and attaching source and metadata.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrCollaborator
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// WrapCollaborator wraps a Writer/Runner/Reader failure.
func WrapCollaborator(err error, op string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	md := map[string]any{"operation": op}
	for k, v := range metadata {
		md[k] = v
	}
	return apperrors.Wrap(err, apperrors.CategoryExternal, op+" failed").
		WithTextCode(ErrCodeCollaborator).
		WithMetadata(md)
}

// ErrorCode returns the go-errors text code carried by err, if any.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsConfigInconsistent reports whether err came from an unsafe merge.
func IsConfigInconsistent(err error) bool {
	return ErrorCode(err) == ErrCodeConfigInconsistent
}

func unknownStateError(name string) error {
	return NewError(ErrUnknownState, "", nil, map[string]any{"state": name})
}
