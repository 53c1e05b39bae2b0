package shard

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// MalformedShardError describes why a shard was rejected. Entry is the
// zero-based position of the offending entry, or -1 when the shard as a
// whole is bad.
type MalformedShardError struct {
	Shard  string
	Entry  int
	Reason string
	Cause  error
}

func (e *MalformedShardError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "malformed shard %q", e.Shard)
	if e.Entry >= 0 {
		fmt.Fprintf(&b, " entry %d", e.Entry)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *MalformedShardError) Unwrap() []error {
	if e.Cause != nil {
		return []error{apperrors.ErrMalformedShard, e.Cause}
	}
	return []error{apperrors.ErrMalformedShard}
}

func malformed(key string, entry int, format string, args ...any) *MalformedShardError {
	return &MalformedShardError{Shard: key, Entry: entry, Reason: fmt.Sprintf(format, args...)}
}

// LoadError lists every shard skipped by one Load call.
type LoadError struct {
	Failures []*MalformedShardError
}

func (e *LoadError) Error() string {
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Shard
	}
	return fmt.Sprintf("%d shard(s) skipped: %s", len(e.Failures), strings.Join(keys, ", "))
}

func (e *LoadError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
