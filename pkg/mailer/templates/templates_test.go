package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachkit/reach/config"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:     "reach",
		CompanyName: "Reach Inc",
		BaseURL:     "https://reach.example",
	}
}

func TestRender_AllTemplates(t *testing.T) {
	cfg := testConfig()
	link := "https://reach.example/preferences?token=abc"

	cases := []struct {
		name string
		data map[string]any
	}{
		{Welcome, NewWelcomeData(cfg, "Sam", "sam@example.com", link)},
		{VerifyEmail, NewVerifyEmailData(cfg, "Sam", "sam@example.com", link)},
		{Unsubscribe, NewUnsubscribeData(cfg, "Sam", "sam@example.com", link)},
		{PreferencesUpdated, NewPreferencesUpdatedData(cfg, "Sam", "sam@example.com", link)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subject, text, html, err := Render(tc.name, tc.data)
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.NotEmpty(t, text)
			assert.Contains(t, html, "https://reach.example")
		})
	}
}

func TestRender_WelcomeCarriesPreferencesLink(t *testing.T) {
	cfg := testConfig()
	link := "https://reach.example/preferences?token=abc"
	data := NewWelcomeData(cfg, "", "sam@example.com", link)

	_, text, html, err := Render(Welcome, data)
	require.NoError(t, err)
	assert.Contains(t, text, link)
	assert.Contains(t, html, link)
}

func TestRender_VerifyCarriesVerifyLink(t *testing.T) {
	cfg := testConfig()
	link := "https://reach.example/verify?token=xyz"
	data := NewVerifyEmailData(cfg, "Sam", "sam@example.com", link)

	_, text, html, err := Render(VerifyEmail, data)
	require.NoError(t, err)
	assert.Contains(t, text, link)
	assert.Contains(t, html, link)
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, _, _, err := Render("nope", nil)
	assert.Error(t, err)
}

func TestDefaultFn(t *testing.T) {
	assert.Equal(t, "fallback", defaultFn("fallback", ""))
	assert.Equal(t, "value", defaultFn("fallback", "value"))
	assert.Equal(t, "fallback", defaultFn("fallback", nil))
}
