package rpcutil

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
)

// Classifier maps package-specific errors to a code. ok is false when it does not recognise err.
type Classifier func(err error) (code connect.Code, ok bool)

// Error converts an engine error to a connect error. Package classifiers run first,
// then the errors every engine shares.
func Error(err error, classifiers ...Classifier) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	for _, classify := range classifiers {
		if code, ok := classify(err); ok {
			return connect.NewError(code, err)
		}
	}
	return connect.NewError(commonCode(err), err)
}

func commonCode(err error) connect.Code {
	var (
		unknownStat *stats.UnknownStatError
		outOfRange  *stats.OutOfRangeError
		badAdjust   *stats.InvalidAdjustmentError
		conflict    *stats.ConflictError
	)
	switch {
	case errors.As(err, &unknownStat),
		errors.As(err, &outOfRange),
		errors.As(err, &badAdjust),
		errors.Is(err, stats.ErrNotOverridable),
		errors.Is(err, models.ErrUnknownPosition):
		return connect.CodeInvalidArgument
	case errors.As(err, &conflict):
		return connect.CodeAborted
	case errors.Is(err, store.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	}
	return connect.CodeInternal
}

// ParseUUID parses a request field, failing with InvalidArgument.
func ParseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}

// ParseUUIDs parses a list of ids.
func ParseUUIDs(field string, values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := ParseUUID(field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ParseStat parses a stat name, failing with InvalidArgument.
func ParseStat(name string) (stats.Stat, error) {
	s, err := stats.Parse(name)
	if err != nil {
		return "", connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s, nil
}
