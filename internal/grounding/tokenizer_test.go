package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCode_SplitsOnDelimiters(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{name: "parentheses", input: "func(arg)", expect: []string{"func", "arg"}},
		{name: "dots", input: "object.method", expect: []string{"object", "method"}},
		{name: "mixed delimiters", input: "foo.bar(baz, qux)", expect: []string{"foo", "bar", "baz", "qux"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tokenizeCode(tt.input))
		})
	}
}

func TestTokenizeCode_SplitsCamelCase(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{name: "simple camelCase", input: "getUserById", expect: []string{"get", "user", "by", "id"}},
		{name: "PascalCase", input: "UserAuthManager", expect: []string{"user", "auth", "manager"}},
		{name: "with acronym", input: "parseHTTPRequest", expect: []string{"parse", "http", "request"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tokenizeCode(tt.input))
		})
	}
}

func TestTokenizeCode_SplitsSnakeCase(t *testing.T) {
	assert.Equal(t, []string{"get", "user", "by", "id"}, tokenizeCode("get_user_by_id"))
}

func TestTokenizeCode_DropsShortTokens(t *testing.T) {
	assert.Equal(t, []string{"ab"}, tokenizeCode("a ab"))
}
