package commitlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/fingerprint"
	"github.com/nvoxland/bundlebase/internal/objectstore"
)

// nameWidth is the fixed zero-padding width of commit file names (spec §3).
const nameWidth = 17

func filename(index int) string {
	return fmt.Sprintf("%0*d.yaml", nameWidth, index)
}

// URL returns the commit object url for a given index within bundleURL.
func URL(bundleURL string, index int) string {
	return strings.TrimSuffix(bundleURL, "/") + "/_bundlebase/" + filename(index)
}

func dirURL(bundleURL string) string {
	return strings.TrimSuffix(bundleURL, "/") + "/_bundlebase"
}

// parseIndex extracts the numeric index from a commit file url, or ok=false
// if it is not a top-level commit file (e.g. something under packs/ or
// views/, which List's recursive prefix match will also return).
func parseIndex(bundleURL, candidateURL string) (int, bool) {
	prefix := dirURL(bundleURL) + "/"
	rest := strings.TrimPrefix(candidateURL, prefix)
	if rest == candidateURL || strings.Contains(rest, "/") {
		return 0, false
	}
	if !strings.HasSuffix(rest, ".yaml") {
		return 0, false
	}
	base := strings.TrimSuffix(rest, ".yaml")
	if len(base) != nameWidth {
		return 0, false
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LocalCommit pairs a decoded Envelope with its position and the
// fingerprint of its canonical bytes (used as the next commit's parent
// pointer and, for the tail commit, as the bundle version).
type LocalCommit struct {
	Index       int
	Envelope    Envelope
	Fingerprint string
}

// ReadLocal lists and decodes every commit file belonging directly to
// bundleURL (not following any FROM chain), ordered by index. It
// enforces the no-gaps invariant (spec §8 invariant... commit file names
// strictly increase by 1).
func ReadLocal(ctx context.Context, store objectstore.Store, bundleURL string) ([]LocalCommit, error) {
	entries, err := store.List(ctx, dirURL(bundleURL)+"/")
	if err != nil {
		return nil, err
	}
	indices := map[int]string{}
	for _, e := range entries {
		if idx, ok := parseIndex(bundleURL, e); ok {
			indices[idx] = e
		}
	}
	if len(indices) == 0 {
		return nil, bberrors.NotFound("no init commit at %q", bundleURL)
	}
	sorted := make([]int, 0, len(indices))
	for idx := range indices {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)
	if sorted[0] != 0 {
		return nil, bberrors.New(bberrors.DecodeErrorKind, "bundle %q is missing its init commit (00000000000000000.yaml)", bundleURL)
	}
	result := make([]LocalCommit, 0, len(sorted))
	for i, idx := range sorted {
		if idx != i {
			return nil, bberrors.New(bberrors.DecodeErrorKind, "bundle %q has a gap in its commit sequence at index %d", bundleURL, i)
		}
		raw, err := store.Get(ctx, indices[idx])
		if err != nil {
			return nil, err
		}
		env, err := Decode(raw)
		if err != nil {
			return nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "decoding commit %d of %q", idx, bundleURL)
		}
		result = append(result, LocalCommit{Index: idx, Envelope: env, Fingerprint: fingerprint.Of(raw)})
	}
	return result, nil
}

// Chain is the resolved logical commit sequence of a bundle, including
// any ancestors reached by following InitCommit.From pointers (spec
// §4.3, §4.9 "FROM chain").
type Chain struct {
	BundleURL string
	BundleID  string
	// Full is the entire logical commit sequence: ancestors (oldest
	// first) followed by this bundle's own commits, in order.
	Full []LocalCommit
	// Local is just this bundle's own commit files (its init commit and
	// any numbered commits it has written itself).
	Local []LocalCommit
}

// HeadIndex is the index of this bundle's own most recent commit file.
func (c *Chain) HeadIndex() int {
	return c.Local[len(c.Local)-1].Index
}

// HeadFingerprint is the fingerprint of this bundle's own most recent
// commit file's canonical bytes — the parent pointer the next append
// must use.
func (c *Chain) HeadFingerprint() string {
	return c.Local[len(c.Local)-1].Fingerprint
}

// Version is the 12-hex bundle version of spec §3/§4.3: the fingerprint
// of the head commit's canonical bytes. It changes iff this bundle's own
// head commit changes (spec §8 invariant 6) — it does not reflect
// ancestor history reachable only through a FROM pointer, since a FROM
// pointer stores a url, not a content hash.
func (c *Chain) Version() string {
	return c.HeadFingerprint()
}

// StoreFactory resolves a bundle url to the objectstore.Store that owns it.
type StoreFactory func(bundleURL string) (objectstore.Store, error)

// Load resolves the full logical Chain for bundleURL, following FROM
// pointers and rejecting cycles (spec §9 "FROM-chain cycles").
func Load(ctx context.Context, factory StoreFactory, bundleURL string) (*Chain, error) {
	return load(ctx, factory, bundleURL, map[string]bool{})
}

func load(ctx context.Context, factory StoreFactory, bundleURL string, visited map[string]bool) (*Chain, error) {
	if visited[bundleURL] {
		return nil, bberrors.New(bberrors.InvalidUrlKind, "cycle in FROM chain at %q", bundleURL)
	}
	visited[bundleURL] = true

	store, err := factory(bundleURL)
	if err != nil {
		return nil, err
	}
	local, err := ReadLocal(ctx, store, bundleURL)
	if err != nil {
		return nil, err
	}
	init := local[0].Envelope

	var ancestors []LocalCommit
	var bundleID string
	if init.From != "" {
		parent, err := load(ctx, factory, init.From, visited)
		if err != nil {
			return nil, err
		}
		ancestors = parent.Full
		bundleID = parent.BundleID
	} else {
		bundleID = init.ID
	}

	full := make([]LocalCommit, 0, len(ancestors)+len(local))
	full = append(full, ancestors...)
	full = append(full, local...)

	return &Chain{BundleURL: bundleURL, BundleID: bundleID, Full: full, Local: local}, nil
}

// Writer appends new commits to a single bundle, serializing concurrent
// writers per spec §5 ("single logical writer per bundle URL").
type Writer struct {
	store     objectstore.Store
	bundleURL string
	lockPath  string
}

// NewWriter builds a Writer. When bundleURL is a local filesystem path,
// appends are additionally serialized with an advisory file lock (spec
// §5's single-writer rule enforced the way the teacher guards its own
// sync operations with gofrs/flock against a `.sync.lock` file);
// memory:// and s3:// bundles rely on the store's PutIfAbsent atomicity
// alone.
func NewWriter(store objectstore.Store, bundleURL string) *Writer {
	w := &Writer{store: store, bundleURL: bundleURL}
	if objectstore.Scheme(bundleURL) == "file" {
		path := strings.TrimPrefix(bundleURL, "file://")
		w.lockPath = filepath.Join(dirURLPath(path), ".lock")
	}
	return w
}

func dirURLPath(path string) string {
	return strings.TrimSuffix(path, "/") + "/_bundlebase"
}

func (w *Writer) withLock(fn func() error) error {
	if w.lockPath == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(w.lockPath), 0o755); err != nil {
		return bberrors.Wrap(bberrors.IoKind, err, "creating lock directory")
	}
	fl := flock.New(w.lockPath)
	if err := fl.Lock(); err != nil {
		return bberrors.Wrap(bberrors.IoKind, err, "acquiring bundle write lock")
	}
	defer fl.Unlock()
	return fn()
}

// WriteInit writes the init commit (index 0). Returns
// BundleAlreadyExists if one is already present (spec §4.9).
func (w *Writer) WriteInit(ctx context.Context, e Envelope) (LocalCommit, error) {
	var result LocalCommit
	err := w.withLock(func() error {
		raw, err := Encode(e)
		if err != nil {
			return err
		}
		ok, err := w.store.PutIfAbsent(ctx, URL(w.bundleURL, 0), raw)
		if err != nil {
			return err
		}
		if !ok {
			return bberrors.New(bberrors.BundleAlreadyExistsKind, "bundle already exists at %q", w.bundleURL)
		}
		result = LocalCommit{Index: 0, Envelope: e, Fingerprint: fingerprint.Of(raw)}
		return nil
	})
	return result, err
}

// Append writes the next numbered commit after (headIndex,
// headFingerprint), setting e.Parent to headFingerprint. Returns
// ConcurrentWriteConflict if a racing writer already claimed that index
// (spec §4.3) — the caller may reload the Chain and retry.
func (w *Writer) Append(ctx context.Context, headIndex int, headFingerprint string, e Envelope) (LocalCommit, error) {
	var result LocalCommit
	err := w.withLock(func() error {
		e.Parent = headFingerprint
		index := headIndex + 1
		raw, err := Encode(e)
		if err != nil {
			return err
		}
		ok, err := w.store.PutIfAbsent(ctx, URL(w.bundleURL, index), raw)
		if err != nil {
			return err
		}
		if !ok {
			return bberrors.New(bberrors.ConcurrentWriteConflictKind,
				"another writer already committed index %d of %q", index, w.bundleURL)
		}
		result = LocalCommit{Index: index, Envelope: e, Fingerprint: fingerprint.Of(raw)}
		return nil
	})
	return result, err
}
