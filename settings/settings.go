/*
Package settings provides runtime configuration for the billing engine.

PURPOSE:
  Supplies tax presets, branding, follow-up templates, and the sweep's
  cron expression/timezone. Values load from an optional YAML file over
  built-in defaults, so the engine runs with zero configuration in dev.

RECOGNIZED KEYS:
  tax.vatRate                  float, default 0.12
  tax.defaultWithholdingRate   float, default 0.02
  tax.defaultWithholdingCode   string
  scheduler.cronExpression     string, default "0 6 * * *"
  scheduler.timezone           string, default "Asia/Manila"
  branding.*                   passed through to the PDF renderer
  followUp.templates           per-level subject/greeting/body/closing

EXAMPLE (billing.yaml):
  tax:
    vatRate: 0.12
    defaultWithholdingRate: 0.02
    defaultWithholdingCode: WC158
  scheduler:
    cronExpression: "30 6 * * *"
    timezone: Asia/Manila

SEE ALSO:
  - templates.go: follow-up template store and cache
  - cmd/server/main.go: loads the file at startup
*/
package settings

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
	"gopkg.in/yaml.v3"
)

// Provider is the loaded, validated configuration. Constructed once at
// process start and passed by reference; never ambient global state.
type Provider struct {
	Tax       TaxSettings
	Scheduler SchedulerSettings
	Branding  billing.Branding
	Templates *TemplateStore

	location *time.Location
}

type TaxSettings struct {
	VATRate                decimal.Decimal
	DefaultWithholdingRate decimal.Decimal
	DefaultWithholdingCode string
}

type SchedulerSettings struct {
	CronExpression string
	Timezone       string
}

// fileConfig is the YAML shape.
type fileConfig struct {
	Tax struct {
		VATRate                *float64 `yaml:"vatRate"`
		DefaultWithholdingRate *float64 `yaml:"defaultWithholdingRate"`
		DefaultWithholdingCode string   `yaml:"defaultWithholdingCode"`
	} `yaml:"tax"`
	Scheduler struct {
		CronExpression string `yaml:"cronExpression"`
		Timezone       string `yaml:"timezone"`
	} `yaml:"scheduler"`
	Branding struct {
		CompanyName string `yaml:"companyName"`
		LogoURL     string `yaml:"logoUrl"`
		FooterNote  string `yaml:"footerNote"`
	} `yaml:"branding"`
	FollowUp struct {
		Templates []templateConfig `yaml:"templates"`
	} `yaml:"followUp"`
}

// Default returns a provider with built-in defaults and the standard
// three-level follow-up templates.
func Default() *Provider {
	return &Provider{
		Tax: TaxSettings{
			VATRate:                billing.DefaultVATRate,
			DefaultWithholdingRate: billing.DefaultWithholdingRate,
			DefaultWithholdingCode: "WC158",
		},
		Scheduler: SchedulerSettings{
			CronExpression: "0 6 * * *",
			Timezone:       "Asia/Manila",
		},
		Templates: NewTemplateStore(defaultTemplates()),
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Provider, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}

	if fc.Tax.VATRate != nil {
		p.Tax.VATRate = decimal.NewFromFloat(*fc.Tax.VATRate)
	}
	if fc.Tax.DefaultWithholdingRate != nil {
		p.Tax.DefaultWithholdingRate = decimal.NewFromFloat(*fc.Tax.DefaultWithholdingRate)
	}
	if fc.Tax.DefaultWithholdingCode != "" {
		p.Tax.DefaultWithholdingCode = fc.Tax.DefaultWithholdingCode
	}
	if fc.Scheduler.CronExpression != "" {
		p.Scheduler.CronExpression = fc.Scheduler.CronExpression
	}
	if fc.Scheduler.Timezone != "" {
		p.Scheduler.Timezone = fc.Scheduler.Timezone
	}
	if fc.Branding.CompanyName != "" {
		p.Branding.CompanyName = fc.Branding.CompanyName
	}
	if fc.Branding.LogoURL != "" {
		p.Branding.LogoURL = fc.Branding.LogoURL
	}
	if fc.Branding.FooterNote != "" {
		p.Branding.FooterNote = fc.Branding.FooterNote
	}

	for _, tc := range fc.FollowUp.Templates {
		p.Templates.Put(tc.EntityID, tc.Level, Template{
			Subject:  tc.Subject,
			Greeting: tc.Greeting,
			Body:     tc.Body,
			Closing:  tc.Closing,
		})
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) validate() error {
	if p.Tax.VATRate.IsNegative() {
		return fmt.Errorf("settings: tax.vatRate must not be negative")
	}
	if p.Tax.DefaultWithholdingRate.IsNegative() {
		return fmt.Errorf("settings: tax.defaultWithholdingRate must not be negative")
	}
	if _, err := billing.ParseCron(p.Scheduler.CronExpression); err != nil {
		return fmt.Errorf("settings: scheduler.cronExpression: %w", err)
	}
	if _, err := time.LoadLocation(p.Scheduler.Timezone); err != nil {
		return fmt.Errorf("settings: scheduler.timezone %q: %w", p.Scheduler.Timezone, err)
	}
	return nil
}

// Location returns the scheduler timezone, loading it on first use.
func (p *Provider) Location() *time.Location {
	if p.location == nil {
		loc, err := time.LoadLocation(p.Scheduler.Timezone)
		if err != nil {
			loc = time.UTC
		}
		p.location = loc
	}
	return p.location
}
