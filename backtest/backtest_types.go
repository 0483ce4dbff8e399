package backtest

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/tickvault/tickvault/venue"
)

var (
	// ErrConfiguration is returned when a run configuration cannot be
	// realised against the catalog and venue set. Runs fail before any
	// record is delivered
	ErrConfiguration = errors.New("invalid run configuration")
)

// runNamespace seeds run ids from config digests
var runNamespace = uuid.NewV5(uuid.NamespaceOID, "tickvault.run")

// VenueFill is a fill attributed to the venue that produced it
type VenueFill struct {
	Venue string
	venue.Fill
}

// VenueMarginEvent is a margin breach attributed to its venue
type VenueMarginEvent struct {
	Venue string
	venue.MarginEvent
}

// VenueResult is the terminal state of one simulated venue
type VenueResult struct {
	Name      string
	Account   venue.AccountSnapshot
	Positions []venue.Position
}

// Result is the outcome of one backtest run. Everything except StartedAt
// and FinishedAt is a pure function of the configuration and catalog
// contents: two runs with equal ConfigDigest over the same catalog state
// produce identical results
type Result struct {
	RunID        uuid.UUID
	Name         string
	ConfigDigest string
	Records      uint64
	Fills        []VenueFill
	MarginEvents []VenueMarginEvent
	Venues       []VenueResult

	StartedAt  time.Time
	FinishedAt time.Time
}
