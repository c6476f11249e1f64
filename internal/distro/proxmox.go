package distro

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/clean-dependency-project/isofetch/internal/release"
)

const (
	ProxmoxISOURL = "https://enterprise.proxmox.com/iso/"

	proxmoxName  = "proxmox"
	proxmoxUsage = "proxmox <product> latest"
)

// ProxmoxConfig lists the products sharing the flat ISO directory.
type ProxmoxConfig struct {
	BaseURL  string
	Products []string
}

// DefaultProxmoxConfig returns the product table for the public mirror.
func DefaultProxmoxConfig() ProxmoxConfig {
	return NewProxmoxConfig(ProxmoxISOURL)
}

// NewProxmoxConfig builds the product table against baseURL.
func NewProxmoxConfig(baseURL string) ProxmoxConfig {
	return ProxmoxConfig{
		BaseURL:  dirURL(baseURL),
		Products: []string{"backup-server", "datacenter-manager", "mail-gateway", "ve"},
	}
}

// Proxmox ranks one product's ISOs by version, then by ISO respin.
type Proxmox struct {
	config ProxmoxConfig
	env    Env
}

// NewProxmox creates the proxmox strategy.
func NewProxmox(config ProxmoxConfig, env Env) *Proxmox {
	return &Proxmox{config: config, env: env}
}

func (p *Proxmox) Name() string      { return proxmoxName }
func (p *Proxmox) Options() []string { return p.config.Products }

func (p *Proxmox) Usage() string {
	return proxmoxUsage + "; products: " + strings.Join(p.config.Products, ", ")
}

func (p *Proxmox) supports(product string) bool {
	for _, name := range p.config.Products {
		if name == product {
			return true
		}
	}
	return false
}

// Resolve implements Strategy.
func (p *Proxmox) Resolve(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, argError(proxmoxName, p.Usage(), "expected 2 arguments, got %d", len(args))
	}
	product, channel := args[0], args[1]
	if !p.supports(product) {
		return nil, argError(proxmoxName, p.Usage(), "invalid product %q", product)
	}
	if channel != ChannelLatest {
		return nil, argError(proxmoxName, p.Usage(), "channel must be latest, got %q", channel)
	}

	entries, err := p.env.Lister.ListEntries(ctx, p.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", product, err)
	}

	pattern := regexp.MustCompile(`proxmox-` + regexp.QuoteMeta(product) +
		`_(?P<version>(?P<major>\d+)\.(?P<minor>\d+)-(?P<patch>\d+))\.iso`)
	records, err := release.Extract(entries, release.Recognizer{Pattern: pattern}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", product, err)
	}
	latest, err := release.SelectLatest(p.env.dropIgnored(proxmoxName, records, product))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", product, err)
	}

	filename := latest.Entry.Name()
	p.env.logger().Debug("artifact chosen", "distribution", proxmoxName, "product", product, "filename", filename)

	return []string{p.config.BaseURL + filename}, nil
}
