package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/officechat/internal/auth"
	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/store"
)

func writeConfig(t *testing.T) (configFile, dsn string) {
	t.Helper()
	dir := t.TempDir()
	dsn = filepath.Join(dir, "data", "officechat.db")
	configFile = filepath.Join(dir, "officechat.toml")
	content := fmt.Sprintf("[database]\ndriver = \"sqlite\"\ndsn = %q\n\n[log]\nlevel = \"error\"\n", dsn)
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o600))
	return configFile, dsn
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openStore(t *testing.T, dsn string) *store.SQLStore {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMigrate(t *testing.T) {
	configFile, dsn := writeConfig(t)

	_, err := run(t, "", "--config", configFile, "migrate")
	require.NoError(t, err)

	_, err = openStore(t, dsn).ListActiveFiles(context.Background())
	assert.NoError(t, err)
}

func TestCreateAdmin(t *testing.T) {
	configFile, dsn := writeConfig(t)

	out, err := run(t, "s3cret\n", "--config", configFile, "create-admin", "--email", "Boss@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "created administrator")

	u, err := openStore(t, dsn).UserByEmail(context.Background(), "boss@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.True(t, u.IsApproved)
	assert.NoError(t, auth.CompareHashAndPassword(u.PasswordHash, "s3cret"))

	_, err = run(t, "", "--config", configFile, "create-admin", "--email", "boss@example.com", "--password", "x")
	assert.ErrorContains(t, err, "already exists")
}

func TestCreateAdmin_RequiresEmailAndPassword(t *testing.T) {
	configFile, _ := writeConfig(t)

	_, err := run(t, "", "--config", configFile, "create-admin", "--password", "x")
	assert.Error(t, err)

	_, err = run(t, "\n", "--config", configFile, "create-admin", "--email", "a@example.com")
	assert.ErrorContains(t, err, "password must not be empty")
}

func TestApprove(t *testing.T) {
	configFile, dsn := writeConfig(t)
	_, err := run(t, "", "--config", configFile, "migrate")
	require.NoError(t, err)

	st := openStore(t, dsn)
	_, err = st.CreateUser(context.Background(), &store.User{Email: "new@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	out, err := run(t, "", "--config", configFile, "approve", "new@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "approved new@example.com")

	u, err := st.UserByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsApproved)

	_, err = run(t, "", "--config", configFile, "approve", "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
