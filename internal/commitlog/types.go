// Package commitlog implements the on-disk commit format of spec §3/§6:
// the init commit plus numbered commit files referencing content-
// addressed packs, and the reader/writer over them (spec §4.3).
package commitlog

import (
	"time"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/fingerprint"
	"github.com/nvoxland/bundlebase/internal/operation"
)

// Change is the atomic user-visible unit appearing in status() and
// history() (spec §3 "Change"). Its ID is the fingerprint of the
// canonical serialization of its operation list, making changes
// content-addressed and idempotent across authors.
type Change struct {
	ID          string
	Description string
	Operations  []operation.Operation
}

// NewChange builds a Change and eagerly computes its content-addressed
// id, so Builder.status() can report it before anything is committed
// (spec §4.5).
func NewChange(description string, ops []operation.Operation) (Change, error) {
	encoded, err := operation.EncodeList(ops)
	if err != nil {
		return Change{}, err
	}
	return Change{ID: fingerprint.OfString(string(encoded)), Description: description, Operations: ops}, nil
}

// VerifyID recomputes a Change's id from its operations and reports
// whether it still matches — spec §8 invariant 8.
func (c Change) VerifyID() (bool, error) {
	encoded, err := operation.EncodeList(c.Operations)
	if err != nil {
		return false, err
	}
	return fingerprint.OfString(string(encoded)) == c.ID, nil
}

// OperationCount is used by Builder.status().
func (c Change) OperationCount() int { return len(c.Operations) }

// Envelope is the on-disk shape shared by the init commit and every
// numbered commit (spec §6 "Commit file format" / "InitCommit"). For a
// numbered commit, ID and From are both empty and Parent is the
// fingerprint of the previous commit's canonical bytes. For the init
// commit, Parent is empty (it has no predecessor) and exactly one of ID
// (root bundle) or From (extended bundle) is set (spec §3 invariant).
type Envelope struct {
	Parent    string
	Author    string
	Timestamp time.Time
	Message   string
	Changes   []Change
	ID        string
	From      string
}

// IsInit reports whether e is an init commit.
func (e Envelope) IsInit() bool { return e.ID != "" || e.From != "" }

// Validate enforces the InitCommit id/from exclusivity invariant (spec
// §3, §8 invariant 3).
func (e Envelope) Validate() error {
	if e.ID != "" && e.From != "" {
		return bberrors.New(bberrors.ConfigErrorKind, "init commit carries both id and from")
	}
	return nil
}

// TotalOperations sums operation counts across all changes.
func (e Envelope) TotalOperations() int {
	n := 0
	for _, c := range e.Changes {
		n += c.OperationCount()
	}
	return n
}
