package drift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob" // in-memory for testing
	"gocloud.dev/gcerrors"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
)

// OpenBucket opens the bucket holding the registry, the hash store and the
// cached specs. An empty url opens a file bucket rooted at dir.
func OpenBucket(ctx context.Context, url, dir string) (*blob.Bucket, error) {
	if url == "" {
		b, err := fileblob.OpenBucket(dir, &fileblob.Options{
			CreateDir: true,
			NoTempDir: true,
			Metadata:  fileblob.MetadataDontWrite,
		})
		if err != nil {
			return nil, fmt.Errorf("open spec dir %s: %w", dir, err)
		}
		return b, nil
	}
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return b, nil
}

func readJSON(ctx context.Context, bucket *blob.Bucket, key string, v any) error {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return apierrors.Newf(apierrors.KindConfigNotFound, "%s not found", key)
		}
		return apierrors.Wrap(err, apierrors.KindIO, "read "+key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apierrors.Wrap(err, apierrors.KindIO, "parse "+key)
	}
	return nil
}

func writeJSON(ctx context.Context, bucket *blob.Bucket, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data = append(data, '\n')
	if err := bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return apierrors.Wrap(err, apierrors.KindIO, "write "+key)
	}
	return nil
}

// Registry maps a domain key to its upstream spec URL.
type Registry map[string]string

// LoadRegistry reads the URL registry. A missing registry is a
// KindConfigNotFound error.
func LoadRegistry(ctx context.Context, bucket *blob.Bucket, key string) (Registry, error) {
	var r Registry
	if err := readJSON(ctx, bucket, key, &r); err != nil {
		return nil, err
	}
	if r == nil {
		r = Registry{}
	}
	return r, nil
}

// Domains returns the registered domain keys, sorted.
func (r Registry) Domains() []string {
	out := make([]string, 0, len(r))
	for d := range r {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// HashEntry is the last confirmed sync of one domain.
type HashEntry struct {
	Hash     string `json:"hash"`
	SyncedAt string `json:"synced_at"`
	SpecURL  string `json:"spec_url,omitempty"`
}

// HashStore is the hash document, read and written whole.
type HashStore struct {
	bucket  *blob.Bucket
	key     string
	Entries map[string]HashEntry
}

// LoadHashStore reads the hash store. A missing store is a
// KindConfigNotFound error.
func LoadHashStore(ctx context.Context, bucket *blob.Bucket, key string) (*HashStore, error) {
	s := &HashStore{bucket: bucket, key: key}
	if err := readJSON(ctx, bucket, key, &s.Entries); err != nil {
		return nil, err
	}
	if s.Entries == nil {
		s.Entries = make(map[string]HashEntry)
	}
	return s, nil
}

// Hash returns the stored hash of domain, or nil when the domain has never
// been synced.
func (s *HashStore) Hash(domain string) *string {
	e, ok := s.Entries[domain]
	if !ok || e.Hash == "" {
		return nil
	}
	h := e.Hash
	return &h
}

// Save writes the whole document back.
func (s *HashStore) Save(ctx context.Context) error {
	return writeJSON(ctx, s.bucket, s.key, s.Entries)
}

// SnapshotStore keeps the last classified spec of every domain as the diff
// baseline.
type SnapshotStore struct {
	bucket *blob.Bucket
}

// NewSnapshotStore creates a snapshot store on bucket.
func NewSnapshotStore(bucket *blob.Bucket) *SnapshotStore {
	return &SnapshotStore{bucket: bucket}
}

// SnapshotKey names the cached spec of domain.
func SnapshotKey(domain string) string {
	return ".cache_" + domain + ".json"
}

// Get returns the cached spec of domain, or nil when none is cached.
func (s *SnapshotStore) Get(ctx context.Context, domain string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, SnapshotKey(domain))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w", domain, err)
	}
	return data, nil
}

// Put replaces the cached spec of domain. spec must be valid JSON; it is
// stored indented with its key order intact.
func (s *SnapshotStore) Put(ctx context.Context, domain string, spec []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, spec, "", "  "); err != nil {
		return fmt.Errorf("indent snapshot %s: %w", domain, err)
	}
	buf.WriteByte('\n')
	if err := s.bucket.WriteAll(ctx, SnapshotKey(domain), buf.Bytes(), &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write snapshot %s: %w", domain, err)
	}
	return nil
}
