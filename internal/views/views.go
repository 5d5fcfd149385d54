// Package views implements spec §4.6: a name→id mapping of named
// sub-bundles, each itself a bundle rooted at a subdirectory whose init
// commit FROMs the parent. The name→id fold lives in plan.State
// (Views/ViewsByID, populated by CreateView/RenameView/DropView); this
// package computes the view-id and child-bundle URL and builds the
// CreateView operation and child bundle the builder stages and writes.
package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/commitlog"
	"github.com/nvoxland/bundlebase/internal/fingerprint"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/operation"
	"github.com/nvoxland/bundlebase/internal/plan"
)

// ChildURL computes the URL of the view bundle identified by id under parentURL.
func ChildURL(parentURL, id string) string {
	return strings.TrimSuffix(parentURL, "/") + "/_bundlebase/views/" + id
}

// NewID computes a fresh view-id: the fingerprint of the view's name
// and creation time (spec §4.6 "view-id = fingerprint of the name +
// timestamp"). now is passed in rather than read from time.Now so
// callers keep control over the wall clock (and tests can be
// deterministic).
func NewID(name string, now time.Time) string {
	return fingerprint.OfString(name + "@" + now.UTC().Format(time.RFC3339Nano))
}

// Create materializes a forked builder's staged operations into a new
// child bundle at ChildURL(parentURL, id), whose init commit FROMs
// parentURL, then returns the CreateView operation the parent should
// stage (spec §4.6). author/now drive the child's single commit.
func Create(ctx context.Context, store objectstore.Store, parentURL, name string, stagedOps []operation.Operation, author string, now time.Time) (operation.CreateView, error) {
	id := NewID(name, now)
	childURL := ChildURL(parentURL, id)

	writer := commitlog.NewWriter(store, childURL)
	initCommit, err := writer.WriteInit(ctx, commitlog.Envelope{From: parentURL, Timestamp: now})
	if err != nil {
		return operation.CreateView{}, err
	}

	if len(stagedOps) > 0 {
		change, err := commitlog.NewChange(fmt.Sprintf("view %q definition", name), stagedOps)
		if err != nil {
			return operation.CreateView{}, err
		}
		_, err = writer.Append(ctx, initCommit.Index, initCommit.Fingerprint, commitlog.Envelope{
			Author: author, Timestamp: now, Message: fmt.Sprintf("define view %q", name),
			Changes: []commitlog.Change{change},
		})
		if err != nil {
			return operation.CreateView{}, err
		}
	}

	return operation.CreateView{Name: name, ChildBundleRef: id}, nil
}

// Resolve looks up name_or_id in state's view fold and returns the
// matching ViewDef and its child bundle URL under parentURL. Unknown
// name/id surfaces ViewNotFound with every known name and id listed
// (spec §4.6).
func Resolve(state plan.State, parentURL, nameOrID string) (plan.ViewDef, string, error) {
	if v, ok := state.Views[nameOrID]; ok {
		return v, ChildURL(parentURL, v.ID), nil
	}
	if v, ok := state.ViewsByID[nameOrID]; ok {
		return v, ChildURL(parentURL, v.ID), nil
	}
	return plan.ViewDef{}, "", bberrors.ViewNotFound(nameOrID, alternatives(state))
}

func alternatives(state plan.State) []string {
	out := make([]string, 0, len(state.Views)+len(state.ViewsByID))
	for name := range state.Views {
		out = append(out, name)
	}
	for id := range state.ViewsByID {
		out = append(out, id)
	}
	return out
}
