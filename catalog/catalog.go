// Package catalog maintains the index of partitioned market data on disk.
// The directory layout is one subtree per data kind, then per instrument
// id, with a JSON sidecar index and the instrument definitions beside them.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tickvault/tickvault/catalog/partition"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/internal/btlog"
	"github.com/tickvault/tickvault/marketdata"
	"go.uber.org/zap"
)

// Open loads a catalog rooted at dir, creating it when absent. When the
// sidecar index is missing the catalog is rebuilt from a directory scan
func Open(root string) (*Catalog, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	c := &Catalog{
		root:        root,
		entries:     make(map[key][]Entry),
		instruments: instrument.NewRegistry(),
		log:         btlog.Sub("catalog"),
	}
	if err := c.loadInstruments(); err != nil {
		return nil, err
	}
	loaded, err := c.loadIndex()
	if err != nil {
		return nil, err
	}
	if !loaded {
		if err = c.rebuild(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Root returns the catalog root directory
func (c *Catalog) Root() string { return c.root }

// RegisterInstrument stores an instrument definition in the catalog
func (c *Catalog) RegisterInstrument(i instrument.Instrument) error {
	if err := c.instruments.Register(i); err != nil {
		return err
	}
	c.m.Lock()
	defer c.m.Unlock()
	return c.persistInstruments()
}

// Instrument returns a stored instrument definition
func (c *Catalog) Instrument(id instrument.ID) (instrument.Instrument, error) {
	return c.instruments.Get(id)
}

// Instruments returns all stored instrument definitions
func (c *Catalog) Instruments() []instrument.Instrument {
	return c.instruments.List()
}

// WriteData serializes records into a new partition under the catalog's
// directory layout and registers it, storing the instrument definition as
// a side effect. This is the common ingestion path
func (c *Catalog) WriteData(inst instrument.Instrument, kind marketdata.Kind, records []marketdata.Record) (Entry, error) {
	if err := c.RegisterInstrument(inst); err != nil {
		return Entry{}, err
	}
	dir := filepath.Join(c.root, kind.String(), inst.ID.String())
	ref, err := partition.Write(dir, inst, kind, records)
	if err != nil {
		return Entry{}, err
	}
	return c.Register(ref)
}

// Register adds a partition to the index, assigning it the next write
// sequence. Insertion keeps per key entries sorted by start timestamp
func (c *Catalog) Register(ref partition.Ref) (Entry, error) {
	c.m.Lock()
	defer c.m.Unlock()

	k := key{kind: ref.Kind, id: ref.Instrument}
	for _, e := range c.entries[k] {
		if e.Path == ref.Path {
			return Entry{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, ref.Path)
		}
	}
	c.nextSeq++
	entry := Entry{Ref: ref, Sequence: c.nextSeq}
	c.entries[k] = insertSorted(c.entries[k], entry)
	if err := c.persistIndex(); err != nil {
		return Entry{}, err
	}
	c.log.Info("partition registered",
		zap.String("kind", ref.Kind.String()),
		zap.String("instrument", ref.Instrument.String()),
		zap.Int64("min_ts", ref.MinTS),
		zap.Int64("max_ts", ref.MaxTS),
		zap.Uint32("records", ref.Records))
	return entry, nil
}

// Lookup returns every partition whose span intersects [start, end) for
// the kind and instrument, sorted by start timestamp then write sequence.
// Overlapping spans are returned as-is, de-duplication is the query
// engine's concern
func (c *Catalog) Lookup(kind marketdata.Kind, id instrument.ID, start, end int64) ([]Entry, error) {
	if end < start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidWindow, start, end)
	}
	c.m.RLock()
	defer c.m.RUnlock()

	all, ok := c.entries[key{kind: kind, id: id}]
	if !ok || len(all) == 0 {
		return nil, fmt.Errorf("%w: no %v data for %v", ErrPartitionNotFound, kind, id)
	}
	var out []Entry
	for _, e := range all {
		if e.Intersects(start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns every registered partition for the kind and instrument
func (c *Catalog) Entries(kind marketdata.Kind, id instrument.ID) []Entry {
	c.m.RLock()
	defer c.m.RUnlock()
	return append([]Entry(nil), c.entries[key{kind: kind, id: id}]...)
}

// Kinds returns the data kinds present in the catalog
func (c *Catalog) Kinds() []marketdata.Kind {
	c.m.RLock()
	defer c.m.RUnlock()
	seen := make(map[marketdata.Kind]bool)
	for k := range c.entries {
		seen[k.kind] = true
	}
	out := make([]marketdata.Kind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InstrumentsFor returns the instruments holding data of the given kind
func (c *Catalog) InstrumentsFor(kind marketdata.Kind) []instrument.ID {
	c.m.RLock()
	defer c.m.RUnlock()
	var out []instrument.ID
	for k := range c.entries {
		if k.kind == kind {
			out = append(out, k.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Retire removes a partition from the index and deletes its file. This is
// the only deletion path; re-ingesting a time range never silently merges
func (c *Catalog) Retire(ref partition.Ref) error {
	c.m.Lock()
	defer c.m.Unlock()

	k := key{kind: ref.Kind, id: ref.Instrument}
	entries := c.entries[k]
	for i := range entries {
		if entries[i].Path != ref.Path {
			continue
		}
		c.entries[k] = append(entries[:i:i], entries[i+1:]...)
		if len(c.entries[k]) == 0 {
			delete(c.entries, k)
		}
		if err := c.persistIndex(); err != nil {
			return err
		}
		if err := os.Remove(ref.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		c.log.Info("partition retired", zap.String("path", ref.Path))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPartitionNotFound, ref.Path)
}

func insertSorted(entries []Entry, e Entry) []Entry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].MinTS != e.MinTS {
			return entries[i].MinTS > e.MinTS
		}
		return entries[i].Sequence > e.Sequence
	})
	entries = append(entries, Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func (c *Catalog) loadIndex() (bool, error) {
	raw, err := os.ReadFile(filepath.Join(c.root, indexFile))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var doc indexDocument
	if err = json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("parsing %s: %w", indexFile, err)
	}
	c.nextSeq = doc.NextSequence
	for _, e := range doc.Partitions {
		if !filepath.IsAbs(e.Path) {
			e.Path = filepath.Join(c.root, e.Path)
		}
		k := key{kind: e.Kind, id: e.Instrument}
		c.entries[k] = insertSorted(c.entries[k], e)
	}
	return true, nil
}

// rebuild scans the directory layout and reconstructs the index from
// partition headers. Write sequence is recovered from the creation stamp
// embedded in each file name
func (c *Catalog) rebuild() error {
	type stamped struct {
		entry Entry
		stamp int64
	}
	var found []stamped
	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tvp") {
			return nil
		}
		r, openErr := partition.Open(path)
		if openErr != nil {
			c.log.Warn("skipping unreadable partition", zap.String("path", path), zap.Error(openErr))
			return nil
		}
		found = append(found, stamped{
			entry: Entry{Ref: r.Ref()},
			stamp: creationStamp(path, d),
		})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].stamp < found[j].stamp })
	for _, f := range found {
		c.nextSeq++
		f.entry.Sequence = c.nextSeq
		k := key{kind: f.entry.Kind, id: f.entry.Instrument}
		c.entries[k] = insertSorted(c.entries[k], f.entry)
	}
	if len(found) == 0 {
		return nil
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.log.Info("index rebuilt", zap.Int("partitions", len(found)))
	return c.persistIndex()
}

// creationStamp extracts the write nanos suffix from a partition file name,
// falling back to the file's modification time
func creationStamp(path string, d os.DirEntry) int64 {
	base := strings.TrimSuffix(filepath.Base(path), ".tvp")
	if i := strings.LastIndex(base, "-"); i >= 0 {
		if ns, err := strconv.ParseInt(base[i+1:], 10, 64); err == nil {
			return ns
		}
	}
	if info, err := d.Info(); err == nil {
		return info.ModTime().UnixNano()
	}
	return 0
}

// persistIndex atomically rewrites the sidecar index. Caller holds the lock
func (c *Catalog) persistIndex() error {
	doc := indexDocument{Version: 1, NextSequence: c.nextSeq}
	for _, entries := range c.entries {
		doc.Partitions = append(doc.Partitions, entries...)
	}
	sort.Slice(doc.Partitions, func(i, j int) bool {
		return doc.Partitions[i].Sequence < doc.Partitions[j].Sequence
	})
	for i := range doc.Partitions {
		if rel, err := filepath.Rel(c.root, doc.Partitions[i].Path); err == nil {
			doc.Partitions[i].Path = rel
		}
	}
	return c.writeFileAtomic(indexFile, doc)
}

// persistInstruments atomically rewrites the instrument definitions file.
// Caller holds the lock
func (c *Catalog) persistInstruments() error {
	return c.writeFileAtomic(instrumentsFile, c.instruments.List())
}

func (c *Catalog) loadInstruments() error {
	raw, err := os.ReadFile(filepath.Join(c.root, instrumentsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var defs []instrument.Instrument
	if err = json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("parsing %s: %w", instrumentsFile, err)
	}
	for _, d := range defs {
		if err = c.instruments.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) writeFileAtomic(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.root, "."+name+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(c.root, name))
}
