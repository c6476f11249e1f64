// Package distro resolves download jobs into image URLs. Each supported
// distribution is a Strategy built from an immutable configuration struct;
// strategies share a listing client and never mutate their configuration,
// so one instance may serve concurrent jobs.
package distro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/clean-dependency-project/isofetch/internal/listing"
	"github.com/clean-dependency-project/isofetch/internal/release"
)

// Channel vocabulary.
const (
	ChannelLatest = "latest"
	ChannelLTS    = "lts"
	ChannelStable = "stable"
)

var (
	// ErrInvalidArgument indicates a job with the wrong number of arguments or
	// an unsupported variant, board, product or channel.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownDistribution indicates no strategy is registered under a name.
	ErrUnknownDistribution = errors.New("unknown distribution")
)

// ArgumentError describes a rejected argument list. It is returned before
// any request is made.
type ArgumentError struct {
	Distribution string
	Reason       string
	Usage        string
}

func (e *ArgumentError) Error() string {
	if e.Usage == "" {
		return fmt.Sprintf("invalid arguments: %s", e.Reason)
	}
	return fmt.Sprintf("invalid arguments: %s (usage: %s)", e.Reason, e.Usage)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Strategy resolves the arguments of one job into download URLs.
type Strategy interface {
	// Name is the distribution identifier used in job lists.
	Name() string
	// Usage is a one-line synopsis of the accepted arguments.
	Usage() string
	// Options lists the supported variants, flavors, boards or products.
	Options() []string
	Resolve(ctx context.Context, args []string) ([]string, error)
}

// Lister is the subset of listing.Client strategies use.
type Lister interface {
	ListEntries(ctx context.Context, url string) ([]listing.Entry, error)
	PageText(ctx context.Context, url string, tags ...string) ([]string, error)
}

// IgnoreFunc reports whether a release must be skipped. qualifiers are the
// flavor, variant, board or product of the job.
type IgnoreFunc func(distribution, version string, qualifiers ...string) bool

// Env carries the collaborators shared by all strategies.
type Env struct {
	Lister Lister
	Ignore IgnoreFunc
	Logger *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// dropIgnored removes records the ignore rules exclude, keeping order.
func (e Env) dropIgnored(distribution string, records []release.VersionRecord, qualifiers ...string) []release.VersionRecord {
	if e.Ignore == nil {
		return records
	}
	return release.Filter(records, func(r release.VersionRecord) bool {
		if e.Ignore(distribution, r.Version, qualifiers...) {
			e.logger().Debug("release ignored",
				"distribution", distribution,
				"version", r.Version,
				"qualifiers", qualifiers)
			return false
		}
		return true
	})
}

func argError(distribution, usage, format string, args ...any) error {
	return &ArgumentError{
		Distribution: distribution,
		Reason:       fmt.Sprintf(format, args...),
		Usage:        usage,
	}
}

// dirURL joins base and elems into a directory URL ending in "/".
func dirURL(base string, elems ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base, "/"))
	b.WriteByte('/')
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		b.WriteString(e)
		b.WriteByte('/')
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
