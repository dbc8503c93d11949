package templates

import (
	"time"

	"github.com/reachkit/reach/config"
)

// Option mutates EmailData before rendering.
type Option func(*EmailData)

func WithBanner(text string) Option        { return func(d *EmailData) { d.BannerText = text } }
func WithPreferencesURL(url string) Option { return func(d *EmailData) { d.PreferencesURL = url } }
func WithVerifyURL(url string) Option      { return func(d *EmailData) { d.VerifyURL = url } }

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		d.ExpiresAtText = t.UTC().Format("02 January 2006, 15:04")
	}
}

// NewBaseEmailData fills common fields from config, then applies Options.
func NewBaseEmailData(cfg *config.Config, typ, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:  name,
		Email: email,
		Type:  typ,

		AppName:        cfg.AppName,
		CompanyName:    cfg.CompanyName,
		CompanyAddress: cfg.CompanyAddress,
		LogoURL:        cfg.LogoURL,
		SupportURL:     cfg.SupportURL,
		PrivacyURL:     cfg.PrivacyURL,
		BaseURL:        cfg.BaseURL,
	}
	if d.Name == "" {
		d.Name = email
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewWelcomeData(cfg *config.Config, name, email, preferencesURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithPreferencesURL(preferencesURL), WithBanner("Welcome to the journey")}, opts...)
	return ToMap(NewBaseEmailData(cfg, Welcome, name, email, opts...))
}

func NewVerifyEmailData(cfg *config.Config, name, email, verifyURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithVerifyURL(verifyURL), WithBanner("Verify your email address")}, opts...)
	return ToMap(NewBaseEmailData(cfg, VerifyEmail, name, email, opts...))
}

func NewUnsubscribeData(cfg *config.Config, name, email, preferencesURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithPreferencesURL(preferencesURL), WithBanner("See you again soon")}, opts...)
	return ToMap(NewBaseEmailData(cfg, Unsubscribe, name, email, opts...))
}

func NewPreferencesUpdatedData(cfg *config.Config, name, email, preferencesURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithPreferencesURL(preferencesURL), WithBanner("Your preferences are updated")}, opts...)
	return ToMap(NewBaseEmailData(cfg, PreferencesUpdated, name, email, opts...))
}
