package distro

import (
	"context"
	"fmt"

	"github.com/clean-dependency-project/isofetch/internal/release"
)

const (
	DebianCDURL = "https://cdimage.debian.org/debian-cd/current/amd64/iso-cd/"

	debianName  = "debian"
	debianUsage = "debian netinst stable"
)

// DebianConfig is the static Debian table. The directory publishes a single
// netinst image for the current stable release.
type DebianConfig struct {
	BaseURL string
	Variant string
	Channel string
	Suffix  string
}

// DefaultDebianConfig returns the table for the public mirror.
func DefaultDebianConfig() DebianConfig {
	return NewDebianConfig(DebianCDURL)
}

// NewDebianConfig builds the table against baseURL.
func NewDebianConfig(baseURL string) DebianConfig {
	return DebianConfig{
		BaseURL: dirURL(baseURL),
		Variant: "netinst",
		Channel: ChannelStable,
		Suffix:  "-netinst.iso",
	}
}

// Debian returns the first netinst image of the current release directory.
type Debian struct {
	config DebianConfig
	env    Env
}

// NewDebian creates the debian strategy.
func NewDebian(config DebianConfig, env Env) *Debian {
	return &Debian{config: config, env: env}
}

func (d *Debian) Name() string      { return debianName }
func (d *Debian) Usage() string     { return debianUsage }
func (d *Debian) Options() []string { return []string{d.config.Variant} }

// Resolve implements Strategy.
func (d *Debian) Resolve(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 2 || args[0] != d.config.Variant || args[1] != d.config.Channel {
		return nil, argError(debianName, debianUsage, "only %q is supported, got %q", d.config.Variant+" "+d.config.Channel, args)
	}

	entries, err := d.env.Lister.ListEntries(ctx, d.config.BaseURL)
	if err != nil {
		return nil, err
	}
	entry, err := release.FirstMatching(entries, release.HasSuffix(d.config.Suffix))
	if err != nil {
		return nil, fmt.Errorf("%s image: %w", d.config.Variant, err)
	}

	d.env.logger().Debug("artifact chosen", "distribution", debianName, "filename", entry.Name())

	return []string{d.config.BaseURL + entry.Name()}, nil
}
