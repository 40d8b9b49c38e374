// Package drift detects and classifies changes in upstream API
// specifications.
package drift

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/specdoc"
)

// SpecFetcher downloads a spec document.
type SpecFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Outcome is the result of checking one domain.
type Outcome struct {
	Domain string
	Status Status
	// Report is set when Status is StatusChanged.
	Report *Report
	// Err is set when Status is StatusUnverified.
	Err error
	// CommitBlocked is set when the new baseline could not be cached; the
	// domain's hash must not be committed so the next run retries.
	CommitBlocked bool
}

// Detector checks domains for upstream drift.
type Detector struct {
	fetcher     SpecFetcher
	snapshots   *SnapshotStore
	localDir    func(domain string) string
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLocalDir maps a domain key to its client directory in reports.
func WithLocalDir(fn func(string) string) DetectorOption {
	return func(d *Detector) { d.localDir = fn }
}

// WithConcurrency bounds the number of parallel fetches.
func WithConcurrency(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector.
func NewDetector(fetcher SpecFetcher, snapshots *SnapshotStore, logger *zap.Logger, opts ...DetectorOption) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		fetcher:     fetcher,
		snapshots:   snapshots,
		localDir:    func(domain string) string { return domain },
		concurrency: 4,
		now:         time.Now,
		logger:      logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Check fetches the spec of domain and compares it with the stored hash and
// the cached baseline. A classified document replaces the baseline; the hash
// store is left to Commit.
func (d *Detector) Check(ctx context.Context, domain, url string, storedHash *string) Outcome {
	out := Outcome{Domain: domain}

	raw, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		d.logger.Warn("could not verify domain", zap.String("domain", domain), zap.Error(err))
		out.Status = StatusUnverified
		out.Err = err
		return out
	}

	hash := Hash(raw)
	if storedHash != nil && *storedHash == hash {
		out.Status = StatusInSync
		return out
	}

	report := &Report{
		Domain:       domain,
		LocalDir:     d.localDir(domain),
		PreviousHash: storedHash,
		NewHash:      hash,
		DetectedAt:   d.now().UTC().Format(time.RFC3339),
		SpecURL:      url,
	}
	out.Status = StatusChanged
	out.Report = report

	// The hash covers the raw bytes; diffing and caching see the document.
	doc := specdoc.StripBOM(raw)
	if !gjson.ValidBytes(doc) {
		err := apierrors.New(apierrors.KindClassificationUnknown, "upstream spec is not valid JSON")
		d.logger.Warn("treating change as opaque", zap.String("domain", domain), zap.Error(err))
		report.Opaque = true
		report.ChangeType = NonBreaking
		report.Classification = Classification{
			ChangeType:         NonBreaking,
			AddedPaths:         []string{},
			RemovedPaths:       []string{},
			AddedDefinitions:   []string{},
			RemovedDefinitions: []string{},
			TypeChanges:        []string{},
			Summary:            SummaryOpaque,
		}
		return out
	}

	prev, err := d.snapshots.Get(ctx, domain)
	if err != nil {
		d.logger.Warn("cached spec unreadable, treating as initial sync",
			zap.String("domain", domain), zap.Error(err))
		prev = nil
	}

	report.Classification = Classify(specdoc.StripBOM(prev), doc)
	report.ChangeType = report.Classification.ChangeType

	if err := d.snapshots.Put(ctx, domain, doc); err != nil {
		d.logger.Error("could not cache spec, hash will not be committed",
			zap.String("domain", domain), zap.Error(err))
		out.CommitBlocked = true
	}
	return out
}

// Target is a domain to check.
type Target struct {
	Domain     string
	URL        string
	StoredHash *string
}

// Targets resolves domains against the registry and hash store. A domain
// without a registered URL is returned in missing.
func Targets(domains []string, reg Registry, hashes *HashStore) (targets []Target, missing []string) {
	for _, domain := range domains {
		url, ok := reg[domain]
		if !ok || url == "" {
			missing = append(missing, domain)
			continue
		}
		targets = append(targets, Target{Domain: domain, URL: url, StoredHash: hashes.Hash(domain)})
	}
	return targets, missing
}

// CheckAll checks targets in parallel. Outcomes are sorted by domain.
func (d *Detector) CheckAll(ctx context.Context, targets []Target) []Outcome {
	outcomes := make([]Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = d.Check(ctx, t.Domain, t.URL, t.StoredHash)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Domain < outcomes[j].Domain })
	return outcomes
}

// Commit records the new hash of every changed domain whose baseline was
// cached, and writes the hash store once. It returns the committed domains.
// Nothing is written when no domain qualifies.
func Commit(ctx context.Context, store *HashStore, outcomes []Outcome, now time.Time) ([]string, error) {
	stamp := now.UTC().Format(time.RFC3339)
	var committed []string
	for _, o := range outcomes {
		if o.Status != StatusChanged || o.CommitBlocked || o.Report == nil {
			continue
		}
		entry, ok := store.Entries[o.Domain]
		if ok {
			entry.Hash = o.Report.NewHash
			entry.SyncedAt = stamp
		} else {
			entry = HashEntry{Hash: o.Report.NewHash, SyncedAt: stamp, SpecURL: o.Report.SpecURL}
		}
		store.Entries[o.Domain] = entry
		committed = append(committed, o.Domain)
	}
	if len(committed) == 0 {
		return nil, nil
	}
	if err := store.Save(ctx); err != nil {
		return nil, err
	}
	return committed, nil
}
