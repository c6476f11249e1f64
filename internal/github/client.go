// Package github provides a read-only client for the GitHub Releases API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
)

// Sentinel errors for GitHub operations.
var (
	ErrInvalidRepo     = errors.New("repository must be in format 'owner/repo'")
	ErrReleaseNotFound = errors.New("release not found")
	ErrEmptyTag        = errors.New("release has no tag")
)

// Client wraps the GitHub API client for release lookups on one repository.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// NewClient creates a GitHub API client for the specified repository.
// Repository must be in the format "owner/repo". An empty token gives an
// unauthenticated client, which is enough for public repositories but is
// subject to the lower anonymous rate limit.
func NewClient(token, repository string) (*Client, error) {
	owner, repo, err := parseRepository(repository)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{
		client: client,
		owner:  owner,
		repo:   repo,
	}, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// LatestRelease returns the most recent non-draft, non-prerelease release.
// Returns ErrReleaseNotFound if the repository has none.
func (c *Client) LatestRelease(ctx context.Context) (*github.RepositoryRelease, error) {
	if c.client == nil || c.owner == "" || c.repo == "" {
		return nil, fmt.Errorf("client not initialized: use NewClient to create instances")
	}

	release, resp, err := c.client.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrReleaseNotFound
		}
		return nil, fmt.Errorf("failed to get latest release of %s: %w", c.Repository(), err)
	}

	return release, nil
}

// LatestReleaseTag returns the tag name of the latest release.
func (c *Client) LatestReleaseTag(ctx context.Context) (string, error) {
	release, err := c.LatestRelease(ctx)
	if err != nil {
		return "", err
	}

	tag := strings.TrimSpace(release.GetTagName())
	if tag == "" {
		return "", fmt.Errorf("%w: latest release of %s", ErrEmptyTag, c.Repository())
	}
	return tag, nil
}

// GetRelease retrieves an existing release by tag name.
// Returns ErrReleaseNotFound if the release doesn't exist.
func (c *Client) GetRelease(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	if tag == "" {
		return nil, fmt.Errorf("release tag cannot be empty")
	}

	if c.client == nil || c.owner == "" || c.repo == "" {
		return nil, fmt.Errorf("client not initialized: use NewClient to create instances")
	}

	release, resp, err := c.client.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrReleaseNotFound
		}
		return nil, fmt.Errorf("failed to get release %s: %w", tag, err)
	}

	return release, nil
}

// AssetDownloadURL returns the browser download URL of the named asset, or
// an empty string when the release has no such asset.
func AssetDownloadURL(release *github.RepositoryRelease, name string) string {
	if release == nil {
		return ""
	}
	for _, asset := range release.Assets {
		if asset.GetName() == name {
			return asset.GetBrowserDownloadURL()
		}
	}
	return ""
}

// ReleaseAssetURL returns the download URL of the named asset of the release
// tagged tag. The URL is empty when the release exists but does not carry
// that asset.
func (c *Client) ReleaseAssetURL(ctx context.Context, tag, name string) (string, error) {
	release, err := c.GetRelease(ctx, tag)
	if err != nil {
		return "", err
	}
	return AssetDownloadURL(release, name), nil
}

// parseRepository splits a repository string into owner and repo.
// Returns an error if the format is invalid.
func parseRepository(repository string) (owner, repo string, err error) {
	if repository == "" {
		return "", "", ErrInvalidRepo
	}

	parts := strings.Split(repository, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: got %s", ErrInvalidRepo, repository)
	}

	owner = strings.TrimSpace(parts[0])
	repo = strings.TrimSpace(parts[1])

	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: owner or repo is empty", ErrInvalidRepo)
	}

	return owner, repo, nil
}
