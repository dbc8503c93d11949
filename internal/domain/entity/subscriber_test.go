package entity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferences_DerivedStates(t *testing.T) {
	assert.True(t, DefaultPreferences().IsDefault())
	assert.False(t, DefaultPreferences().Unsubscribed())

	assert.True(t, EmailPreferences{}.Unsubscribed())
	assert.False(t, EmailPreferences{}.IsDefault())

	custom := EmailPreferences{Marketing: false, Product: true, Content: true}
	assert.False(t, custom.IsDefault())
	assert.False(t, custom.Unsubscribed())
}

func TestNewUID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		uid := NewUID()
		assert.Len(t, uid, 8)
		for _, r := range uid {
			assert.True(t, strings.ContainsRune(uidAlphabet, r), "unexpected rune %q", r)
		}
		seen[uid] = true
	}
	assert.Greater(t, len(seen), 95, "uids should not collide in practice")
}

func TestNewSubscriber(t *testing.T) {
	s := NewSubscriber("a@x.com", "Alice", "blog")
	assert.Equal(t, DefaultPreferences(), s.Preferences)
	assert.False(t, s.EmailVerified)
	assert.Len(t, s.UID, 8)
	assert.Equal(t, s.CreatedAt, s.UpdatedAt)
}
