package distro

import (
	"context"
	"fmt"
	"regexp"

	"github.com/clean-dependency-project/isofetch/internal/release"
)

const (
	FedoraReleasesURL = "https://download.fedoraproject.org/pub/fedora/linux/releases/"

	fedoraName  = "fedora"
	fedoraUsage = "fedora <workstation|server> latest"
)

var fedoraGARelease = regexp.MustCompile(`(?P<major>\d+)`)

// FedoraEdition locates one edition's ISO directory and names the tokens its
// image filename must contain.
type FedoraEdition struct {
	Dir    string
	Tokens []string
}

// FedoraConfig is the static Fedora table.
type FedoraConfig struct {
	BaseURL  string
	Arch     string
	Editions map[string]FedoraEdition
}

// DefaultFedoraConfig returns the table for the public mirror.
func DefaultFedoraConfig() FedoraConfig {
	return NewFedoraConfig(FedoraReleasesURL)
}

// NewFedoraConfig builds the table against baseURL.
func NewFedoraConfig(baseURL string) FedoraConfig {
	return FedoraConfig{
		BaseURL: dirURL(baseURL),
		Arch:    "x86_64",
		Editions: map[string]FedoraEdition{
			"workstation": {Dir: "Workstation", Tokens: []string{"Workstation", "Live", "x86_64"}},
			"server":      {Dir: "Server", Tokens: []string{"Server", "dvd", "x86_64"}},
		},
	}
}

// Fedora resolves the newest GA release, then the edition ISO with the
// highest compose id in that release.
type Fedora struct {
	config FedoraConfig
	env    Env
}

// NewFedora creates the fedora strategy.
func NewFedora(config FedoraConfig, env Env) *Fedora {
	return &Fedora{config: config, env: env}
}

func (f *Fedora) Name() string      { return fedoraName }
func (f *Fedora) Usage() string     { return fedoraUsage }
func (f *Fedora) Options() []string { return sortedKeys(f.config.Editions) }

// Resolve implements Strategy.
func (f *Fedora) Resolve(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, argError(fedoraName, fedoraUsage, "expected 2 arguments, got %d", len(args))
	}
	variant, channel := args[0], args[1]
	edition, ok := f.config.Editions[variant]
	if !ok {
		return nil, argError(fedoraName, fedoraUsage, "variant must be one of %v, got %q", f.Options(), variant)
	}
	if channel != ChannelLatest {
		return nil, argError(fedoraName, fedoraUsage, "fedora only supports channel latest, got %q", channel)
	}

	entries, err := f.env.Lister.ListEntries(ctx, f.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", variant, err)
	}
	releases, err := release.Extract(entries, release.Recognizer{Pattern: fedoraGARelease}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", variant, err)
	}
	latest, err := release.SelectLatest(f.env.dropIgnored(fedoraName, releases, variant))
	if err != nil {
		return nil, fmt.Errorf("%s: no GA release: %w", variant, err)
	}

	f.env.logger().Debug("release selected", "distribution", fedoraName, "release", latest.Version)

	isoDir := dirURL(f.config.BaseURL, latest.Version, edition.Dir, f.config.Arch, "iso")
	entries, err = f.env.Lister.ListEntries(ctx, isoDir)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", variant, latest.Version, err)
	}

	// compose ids look like "-42-1.1"; images without one rank lowest
	compose := regexp.MustCompile(`(?:.*-` + regexp.QuoteMeta(latest.Version) + `-(?P<major>\d+)\.(?P<minor>\d+).*|.*)`)
	images, err := release.Extract(entries, release.Recognizer{
		Accept: release.All(
			release.HasPrefix("Fedora-"),
			release.HasSuffix(".iso"),
			release.ContainsAll(edition.Tokens...),
		),
		Pattern: compose,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", variant, latest.Version, err)
	}
	image, err := release.SelectLatest(images)
	if err != nil {
		return nil, fmt.Errorf("%s %s: no ISO containing %v: %w", variant, latest.Version, edition.Tokens, err)
	}

	f.env.logger().Debug("artifact chosen", "filename", image.Version, "compose", fmt.Sprintf("%d.%d", image.Major, image.Minor))

	return []string{isoDir + image.Version}, nil
}
