package distro

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/clean-dependency-project/isofetch/internal/listing"
	"github.com/clean-dependency-project/isofetch/internal/release"
)

const (
	UbuntuReleasesURL = "https://releases.ubuntu.com/"
	UbuntuCDImageURL  = "https://cdimage.ubuntu.com/"

	ubuntuName  = "ubuntu"
	ubuntuUsage = "ubuntu <variant|flavor> <lts|latest> | ubuntu <flavor> <variant> <lts|latest> | ubuntu <any> <variant|flavor> <lts|latest>"

	VariantDesktop = "desktop"
	VariantServer  = "server"
)

var ubuntuGARelease = regexp.MustCompile(`(?P<major>\d{2})\.(?P<minor>\d{2})`)

// IsUbuntuLTS reports whether a YY.MM release is long-term supported:
// April releases of even years.
func IsUbuntuLTS(year, month int) bool {
	return month == 4 && year%2 == 0
}

// UbuntuFlavor describes where a flavor publishes its images.
type UbuntuFlavor struct {
	// BaseURL lists one directory per release.
	BaseURL string
	// ReleaseSubdir is appended to the release directory ("release" on
	// cdimage, empty on releases.ubuntu.com).
	ReleaseSubdir string
	// Templates maps variant to filename template.
	Templates map[string]string
}

// UbuntuConfig holds the flavor table. Canonical names the flavor whose
// release list drives every other flavor.
type UbuntuConfig struct {
	Canonical string
	Flavors   map[string]UbuntuFlavor
}

// DefaultUbuntuConfig returns the flavor table for the public mirrors.
func DefaultUbuntuConfig() UbuntuConfig {
	return NewUbuntuConfig(UbuntuReleasesURL, UbuntuCDImageURL)
}

// NewUbuntuConfig builds the flavor table against the given release and
// cdimage hosts.
func NewUbuntuConfig(releasesURL, cdimageURL string) UbuntuConfig {
	flavor := func(name, kind string) UbuntuFlavor {
		return UbuntuFlavor{
			BaseURL:       dirURL(cdimageURL, name, "releases"),
			ReleaseSubdir: "release",
			Templates: map[string]string{
				VariantDesktop: name + "-" + release.VersionPlaceholder + "-" + kind + "-amd64.iso",
			},
		}
	}

	return UbuntuConfig{
		Canonical: ubuntuName,
		Flavors: map[string]UbuntuFlavor{
			ubuntuName: {
				BaseURL: dirURL(releasesURL),
				Templates: map[string]string{
					VariantDesktop: "ubuntu-" + release.VersionPlaceholder + "-desktop-amd64.iso",
					VariantServer:  "ubuntu-" + release.VersionPlaceholder + "-live-server-amd64.iso",
				},
			},
			"kubuntu":        flavor("kubuntu", "desktop"),
			"lubuntu":        flavor("lubuntu", "desktop"),
			"xubuntu":        flavor("xubuntu", "desktop"),
			"ubuntu-budgie":  flavor("ubuntu-budgie", "desktop"),
			"ubuntu-mate":    flavor("ubuntu-mate", "desktop"),
			"ubuntustudio":   flavor("ubuntustudio", "dvd"),
			"ubuntu-unity":   flavor("ubuntu-unity", "desktop"),
			"ubuntucinnamon": flavor("ubuntucinnamon", "desktop"),
			"ubuntukylin":    flavor("ubuntukylin", "desktop"),
		},
	}
}

// Ubuntu resolves Ubuntu and its flavors. Flavors follow the canonical
// release list: when a flavor has no image for the selected release, older
// releases of the same channel are tried in turn.
type Ubuntu struct {
	config UbuntuConfig
	env    Env
}

// NewUbuntu creates the ubuntu strategy.
func NewUbuntu(config UbuntuConfig, env Env) *Ubuntu {
	return &Ubuntu{config: config, env: env}
}

func (u *Ubuntu) Name() string  { return ubuntuName }
func (u *Ubuntu) Usage() string { return ubuntuUsage }

// Options lists the flavors followed by the canonical variants.
func (u *Ubuntu) Options() []string {
	opts := sortedKeys(u.config.Flavors)
	if canonical, ok := u.config.Flavors[u.config.Canonical]; ok {
		for _, v := range sortedKeys(canonical.Templates) {
			opts = append(opts, u.config.Canonical+"/"+v)
		}
	}
	return opts
}

type ubuntuRequest struct {
	flavor  string
	variant string
	channel string
}

func (u *Ubuntu) parseArgs(args []string) (ubuntuRequest, error) {
	if len(args) != 2 && len(args) != 3 {
		return ubuntuRequest{}, argError(ubuntuName, ubuntuUsage, "expected 2 or 3 arguments, got %d", len(args))
	}

	req := ubuntuRequest{
		flavor:  u.config.Canonical,
		variant: VariantDesktop,
		channel: args[len(args)-1],
	}
	if req.channel != ChannelLTS && req.channel != ChannelLatest {
		return ubuntuRequest{}, argError(ubuntuName, ubuntuUsage, "channel must be lts or latest, got %q", req.channel)
	}

	selector := args[0]
	if len(args) == 3 {
		if _, isFlavor := u.config.Flavors[args[0]]; isFlavor {
			req.flavor, req.variant = args[0], args[1]
			selector = ""
		} else {
			// legacy form: the first token is ignored
			selector = args[1]
		}
	}
	if selector != "" {
		if _, isFlavor := u.config.Flavors[selector]; isFlavor {
			req.flavor = selector
		} else {
			req.variant = selector
		}
	}

	flavor, ok := u.config.Flavors[req.flavor]
	if !ok {
		return ubuntuRequest{}, argError(ubuntuName, ubuntuUsage, "unknown flavor %q, valid flavors: %v", req.flavor, sortedKeys(u.config.Flavors))
	}
	if _, ok := flavor.Templates[req.variant]; !ok {
		return ubuntuRequest{}, argError(ubuntuName, ubuntuUsage, "flavor %s does not publish a %q image, valid variants: %v",
			req.flavor, req.variant, sortedKeys(flavor.Templates))
	}
	return req, nil
}

// Resolve implements Strategy.
func (u *Ubuntu) Resolve(ctx context.Context, args []string) ([]string, error) {
	req, err := u.parseArgs(args)
	if err != nil {
		return nil, err
	}
	flavor := u.config.Flavors[req.flavor]
	template := flavor.Templates[req.variant]
	subject := fmt.Sprintf("%s %s %s", req.flavor, req.variant, req.channel)

	releases, err := u.canonicalReleases(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", subject, err)
	}
	if req.channel == ChannelLTS {
		releases = release.Filter(releases, release.Preferred)
	}

	// the newest candidate, also the answer for the canonical flavor
	selected, err := release.SelectLatest(releases)
	if err != nil {
		if req.channel == ChannelLTS {
			return nil, fmt.Errorf("%s: no LTS release: %w", subject, err)
		}
		return nil, fmt.Errorf("%s: %w", subject, err)
	}

	var entries []listing.Entry
	if req.flavor != u.config.Canonical {
		// the walk keeps the listing of the accepted release for the final match
		probe := func(r release.VersionRecord) (bool, error) {
			found, listed, err := u.hasImage(ctx, flavor, template, r.Version)
			u.env.logger().Debug("flavor probe",
				"flavor", req.flavor,
				"variant", req.variant,
				"release", r.Version,
				"available", found)
			if found {
				entries = listed
			}
			return found, err
		}
		selected, err = release.SelectWithFallback(releases, probe)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", subject, err)
		}
	}

	u.env.logger().Debug("release selected",
		"distribution", ubuntuName,
		"flavor", req.flavor,
		"channel", req.channel,
		"release", selected.Version,
		"lts", selected.Preferred)

	dir := u.releaseDir(flavor, selected.Version)
	if entries == nil {
		entries, err = u.env.Lister.ListEntries(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("%s: release %s: %w", subject, selected.Version, err)
		}
	}

	m, err := release.BuildMatcher(template, selected.Version)
	if err != nil {
		return nil, err
	}
	best, err := release.SelectBestCandidate(entries, m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", subject, err)
	}

	u.env.logger().Debug("artifact chosen",
		"filename", best.Filename,
		"point_release", best.PointRelease)

	return []string{dir + best.Filename}, nil
}

// canonicalReleases lists the canonical release directories, newest first,
// with ignored releases removed.
func (u *Ubuntu) canonicalReleases(ctx context.Context, req ubuntuRequest) ([]release.VersionRecord, error) {
	canonical := u.config.Flavors[u.config.Canonical]

	entries, err := u.env.Lister.ListEntries(ctx, canonical.BaseURL)
	if err != nil {
		return nil, err
	}
	records, err := release.Extract(entries, release.Recognizer{Pattern: ubuntuGARelease}, IsUbuntuLTS)
	if err != nil {
		return nil, err
	}

	records = u.env.dropIgnored(ubuntuName, records, req.flavor, req.variant)
	return release.SortDescending(records), nil
}

func (u *Ubuntu) releaseDir(flavor UbuntuFlavor, version string) string {
	return dirURL(flavor.BaseURL, version, flavor.ReleaseSubdir)
}

// hasImage reports whether the flavor's directory for version holds an image
// for the template. A directory answering with an HTTP error status counts
// as absent; transport failures are returned.
func (u *Ubuntu) hasImage(ctx context.Context, flavor UbuntuFlavor, template, version string) (bool, []listing.Entry, error) {
	entries, err := u.env.Lister.ListEntries(ctx, u.releaseDir(flavor, version))
	if err != nil {
		if listing.IsStatus(err) {
			return false, nil, nil
		}
		return false, nil, err
	}

	m, err := release.BuildMatcher(template, version)
	if err != nil {
		return false, nil, err
	}
	return slices.ContainsFunc(entries, func(e listing.Entry) bool {
		_, ok := m.Match(e.Name())
		return ok
	}), entries, nil
}
