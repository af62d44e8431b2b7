package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/imageproof/internal/config"
	"github.com/bryanwahyu/imageproof/internal/infra/auth"
	"github.com/bryanwahyu/imageproof/internal/infra/events"
)

func TestNewAuthenticator(t *testing.T) {
	a, err := newAuthenticator(config.AuthConfig{
		JWTSecret: "s3cret",
		APIKeys:   map[string]string{"alice": "key-a"},
	})
	require.NoError(t, err)

	j, err := auth.NewJWT("s3cret", "")
	require.NoError(t, err)
	tok, err := j.Issue("bob", time.Hour)
	require.NoError(t, err)

	for header, want := range map[string]string{"Bearer key-a": "alice", "Bearer " + tok: "bob"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		owner, ok := a.Authenticate(req)
		assert.True(t, ok)
		assert.Equal(t, want, owner)
	}
}

func TestNewAuthenticator_None(t *testing.T) {
	a, err := newAuthenticator(config.AuthConfig{})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	_, ok := a.Authenticate(req)
	assert.False(t, ok)
}

func TestOpenDatabase_SQLite(t *testing.T) {
	c := &config.Config{Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")}}
	db, err := openDatabase(context.Background(), c)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(context.Background()))
	// idempotent
	require.NoError(t, db.Migrate(context.Background()))

	list, err := db.repo.ListByOwner(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpenDatabase_Unknown(t *testing.T) {
	_, err := openDatabase(context.Background(), &config.Config{Database: config.DatabaseConfig{Driver: "oracle"}})
	assert.Error(t, err)
}

func TestNewBus_Local(t *testing.T) {
	bus, err := newBus(context.Background(), &config.Config{Events: config.EventsConfig{Driver: "local"}}, events.NewHub())
	require.NoError(t, err)
	_, ok := bus.(*events.LocalBus)
	assert.True(t, ok)
}

func TestConfigCommand_Redacts(t *testing.T) {
	cfg = &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Auth:   config.AuthConfig{JWTSecret: "very-secret"},
	}
	var out bytes.Buffer
	configCmd.SetOut(&out)
	require.NoError(t, configCmd.RunE(configCmd, nil))

	assert.Contains(t, out.String(), "port: 8080")
	assert.False(t, strings.Contains(out.String(), "very-secret"))
}

func TestTokenCommand(t *testing.T) {
	cfg = &config.Config{Auth: config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "imageproof"}}
	var out bytes.Buffer
	tokenCmd.SetOut(&out)
	require.NoError(t, tokenCmd.RunE(tokenCmd, []string{"alice"}))

	j, err := auth.NewJWT("s3cret", "imageproof")
	require.NoError(t, err)
	owner, err := j.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	cfg = &config.Config{}
	assert.Error(t, tokenCmd.RunE(tokenCmd, []string{"alice"}))
}
