package storage

import (
	"io"
	"log/slog"

	"github.com/roach88/recstore/internal/clock"
)

// Options configures the parts of a backend that are not about connecting
// to it.
type Options struct {
	// MaxFetchSize caps the rows returned by GetAll (DefaultMaxFetchSize if 0).
	MaxFetchSize int

	// Clock is the wall-clock source for version stamps (clock.Now if nil).
	Clock clock.Source

	// IDs generates record ids (UUIDGenerator if nil).
	IDs IDGenerator

	// Logger receives diagnostics (discarded if nil).
	Logger *slog.Logger
}

// WithDefaults returns o with every unset option filled in.
func (o Options) WithDefaults() Options {
	if o.MaxFetchSize <= 0 {
		o.MaxFetchSize = DefaultMaxFetchSize
	}
	if o.Clock == nil {
		o.Clock = clock.Now
	}
	if o.IDs == nil {
		o.IDs = UUIDGenerator{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
