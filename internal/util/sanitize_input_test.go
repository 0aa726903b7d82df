package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Ravi Kumar", SanitizeInput("  Ravi Kumar  "))
	assert.Equal(t, "O&#39;Brien", SanitizeInput("O'Brien"))
	assert.Equal(t, "&lt;b&gt;bold&lt;/b&gt;", SanitizeInput("<b>bold</b>"))
	assert.Equal(t, "", SanitizeInput("   "))
}

func TestContainsSuspicious(t *testing.T) {
	suspicious := []string{
		"<script>alert(1)</script>",
		"SCRIPT kiddie",
		"${jndi:ldap://x}",
		"img onerror=alert(1)",
		"body onload=steal()",
		"1 > 0",
	}
	for _, s := range suspicious {
		assert.True(t, ContainsSuspicious(s), s)
	}

	clean := []string{
		"Ravi Kumar",
		"ravi.kumar@example.com",
		"Interested in the data science course",
		"+91-9876543210",
	}
	for _, s := range clean {
		assert.False(t, ContainsSuspicious(s), s)
	}
}
