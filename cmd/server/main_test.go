package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/freelance-hub/internal/auth"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "token"})
	assert.NotNil(t, root.RunE, "bare invocation should serve")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "user-42", "--ttl", "1h"})
	require.NoError(t, root.Execute())

	sub, err := auth.NewTokens("cli-secret").Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "user-42"})
	assert.Error(t, root.Execute())
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")
}
