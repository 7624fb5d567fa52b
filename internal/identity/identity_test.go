package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "identity.json")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, Save(path, Identity{Domain: "FAREAST", Alias: "bob"}))
	id, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FAREAST.bob", id.Login())

	require.NoError(t, Remove(path))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	// 重复登出不报错
	assert.NoError(t, Remove(path))
}

func TestSaveRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	assert.Error(t, Save(path, Identity{Domain: "REDMOND"}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadNormalizesAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"domain":" REDMOND ","alias":"alice@example.com"}`), 0600))
	id, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "REDMOND.alice", id.Login())

	require.NoError(t, os.WriteFile(path, []byte(`{"domain":"REDMOND","alias":""}`), 0600))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0600))
	_, err = Load(path)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotLoggedIn)
}

func TestStaticProvider(t *testing.T) {
	s := NewStatic("")
	_, ok := s.Current()
	assert.False(t, ok)

	s.Set("REDMOND.alice")
	login, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "REDMOND.alice", login)
	<-s.Changes()

	// 未消费的通知合并为一次
	s.Set("FAREAST.bob")
	s.Set("")
	<-s.Changes()
	select {
	case <-s.Changes():
		t.Fatal("changes should coalesce")
	default:
	}
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestFileProviderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	p := NewFileProvider(path)
	_, ok := p.Current()
	assert.False(t, ok)
	assert.False(t, p.Reload(), "nothing changed")

	require.NoError(t, Save(path, Identity{Domain: "REDMOND", Alias: "alice"}))
	assert.True(t, p.Reload())
	login, ok := p.Current()
	assert.True(t, ok)
	assert.Equal(t, "REDMOND.alice", login)
	<-p.Changes()
	assert.False(t, p.Reload())

	require.NoError(t, Remove(path))
	assert.True(t, p.Reload())
	_, ok = p.Current()
	assert.False(t, ok)
}
