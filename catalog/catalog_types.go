package catalog

import (
	"errors"
	"sync"

	"github.com/tickvault/tickvault/catalog/partition"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
	"go.uber.org/zap"
)

var (
	// ErrPartitionNotFound is returned when a lookup references a kind and
	// instrument the catalog holds nothing for, or a retire names an
	// unregistered partition
	ErrPartitionNotFound = errors.New("partition not found")
	// ErrAlreadyRegistered is returned when registering the same partition
	// file twice
	ErrAlreadyRegistered = errors.New("partition already registered")
	// ErrInvalidWindow is returned when a time window has end before start
	ErrInvalidWindow = errors.New("invalid time window")
)

const (
	indexFile       = "index.json"
	instrumentsFile = "instruments.json"
)

// Entry is a registered partition plus its write sequence. Sequence orders
// partitions by registration time; the query engine prefers higher
// sequences when overlapping partitions duplicate a record
type Entry struct {
	partition.Ref
	Sequence uint64 `json:"sequence"`
}

type key struct {
	kind marketdata.Kind
	id   instrument.ID
}

// Catalog tracks which partitions exist per data kind and instrument and
// owns the instrument definitions stored alongside them. State lives in a
// sidecar index file so it can be rebuilt without scanning record contents
type Catalog struct {
	m           sync.RWMutex
	root        string
	nextSeq     uint64
	entries     map[key][]Entry
	instruments *instrument.Registry
	log         *zap.Logger
}

type indexDocument struct {
	Version      int     `json:"version"`
	NextSequence uint64  `json:"next_sequence"`
	Partitions   []Entry `json:"partitions"`
}
