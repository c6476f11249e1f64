package distro

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/clean-dependency-project/isofetch/internal/release"
)

const (
	HomeAssistantReleasesURL = "https://github.com/home-assistant/operating-system/releases"

	homeAssistantName  = "homeassistant"
	homeAssistantUsage = "homeassistant <board> latest"
)

var haVersionText = regexp.MustCompile(`Home Assistant OS (\d+\.\d+)`)

// VersionSource returns the newest Home Assistant OS version.
type VersionSource interface {
	LatestVersion(ctx context.Context) (string, error)
}

// PageVersionSource scrapes the version from the headings and links of the
// "latest release" page.
type PageVersionSource struct {
	Lister Lister
	URL    string
}

// LatestVersion implements VersionSource.
func (p PageVersionSource) LatestVersion(ctx context.Context) (string, error) {
	blocks, err := p.Lister.PageText(ctx, p.URL, "h1", "h2", "a")
	if err != nil {
		return "", err
	}
	for _, text := range blocks {
		if m := haVersionText.FindStringSubmatch(text); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no version on %s: %w", p.URL, release.ErrNotFound)
}

// AssetLocator is implemented by version sources that can see the published
// release assets. The returned URL replaces the one built from the board
// template.
type AssetLocator interface {
	AssetURL(ctx context.Context, version, filename string) (string, error)
}

// ReleaseReader is implemented by github.Client.
type ReleaseReader interface {
	LatestReleaseTag(ctx context.Context) (string, error)
	ReleaseAssetURL(ctx context.Context, tag, name string) (string, error)
}

// GitHubVersionSource reads the tag of the latest GitHub release and looks
// the board image up among its assets. Home Assistant tags carry no "v"
// prefix, so the version doubles as the tag.
type GitHubVersionSource struct {
	Client ReleaseReader
}

// LatestVersion implements VersionSource.
func (g GitHubVersionSource) LatestVersion(ctx context.Context) (string, error) {
	tag, err := g.Client.LatestReleaseTag(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(tag, "v"), nil
}

// AssetURL implements AssetLocator. A release without the asset is
// release.ErrNotFound.
func (g GitHubVersionSource) AssetURL(ctx context.Context, version, filename string) (string, error) {
	url, err := g.Client.ReleaseAssetURL(ctx, version, filename)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("release %s has no asset %s: %w", version, filename, release.ErrNotFound)
	}
	return url, nil
}

// HomeAssistantConfig maps boards to image filename templates.
type HomeAssistantConfig struct {
	BaseURL string
	Boards  map[string]string
}

// DefaultHomeAssistantConfig returns the board table for the GitHub
// releases page.
func DefaultHomeAssistantConfig() HomeAssistantConfig {
	return NewHomeAssistantConfig(HomeAssistantReleasesURL)
}

// NewHomeAssistantConfig builds the board table against baseURL.
func NewHomeAssistantConfig(baseURL string) HomeAssistantConfig {
	boards := make(map[string]string)
	for _, board := range []string{
		"generic-x86-64", "generic-aarch64",
		"rpi3", "rpi3-64", "rpi4", "rpi4-64", "rpi5-64",
		"yellow", "green",
		"odroid-c2", "odroid-c4", "odroid-m1", "odroid-n2", "odroid-xu4",
		"tinker", "khadas-vim3",
	} {
		boards[board] = "haos_" + board + "-" + release.VersionPlaceholder + ".img.xz"
	}
	boards["ova"] = "haos_ova-" + release.VersionPlaceholder + ".qcow2.xz"

	return HomeAssistantConfig{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Boards:  boards,
	}
}

// HomeAssistant builds the board image URL for the newest OS release.
type HomeAssistant struct {
	config  HomeAssistantConfig
	env     Env
	version VersionSource
}

// NewHomeAssistant creates the homeassistant strategy. A nil source scrapes
// the releases page.
func NewHomeAssistant(config HomeAssistantConfig, env Env, source VersionSource) *HomeAssistant {
	if source == nil {
		source = PageVersionSource{Lister: env.Lister, URL: config.BaseURL + "/latest"}
	}
	return &HomeAssistant{config: config, env: env, version: source}
}

func (h *HomeAssistant) Name() string      { return homeAssistantName }
func (h *HomeAssistant) Options() []string { return sortedKeys(h.config.Boards) }

func (h *HomeAssistant) Usage() string {
	return homeAssistantUsage + "; boards: " + strings.Join(h.Options(), ", ")
}

// Resolve implements Strategy.
func (h *HomeAssistant) Resolve(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, argError(homeAssistantName, h.Usage(), "expected 2 arguments, got %d", len(args))
	}
	board, channel := args[0], args[1]
	template, ok := h.config.Boards[board]
	if !ok {
		return nil, argError(homeAssistantName, h.Usage(), "invalid board %q", board)
	}
	if channel != ChannelLatest {
		return nil, argError(homeAssistantName, h.Usage(), "channel must be latest, got %q", channel)
	}

	version, err := h.version.LatestVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: latest version: %w", board, err)
	}
	if h.env.Ignore != nil && h.env.Ignore(homeAssistantName, version, board) {
		return nil, fmt.Errorf("%s: latest version %s is ignored: %w", board, version, release.ErrNotFound)
	}

	m, err := release.BuildMatcher(template, version)
	if err != nil {
		return nil, err
	}

	h.env.logger().Debug("release selected", "distribution", homeAssistantName, "board", board, "release", version)

	if locator, ok := h.version.(AssetLocator); ok {
		url, err := locator.AssetURL(ctx, version, m.Filename())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", board, err)
		}
		return []string{url}, nil
	}
	return []string{fmt.Sprintf("%s/download/%s/%s", h.config.BaseURL, version, m.Filename())}, nil
}
