package vault_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libvault-go/blockcrypt"
	"github.com/bitfsorg/libvault-go/blockstore"
	"github.com/bitfsorg/libvault-go/catalog"
	"github.com/bitfsorg/libvault-go/config"
	"github.com/bitfsorg/libvault-go/keyring"
	"github.com/bitfsorg/libvault-go/vault"
)

var fastKDF = keyring.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RepoPath = t.TempDir()
	cfg.LogFile = filepath.Join(t.TempDir(), "vault.log")
	cfg.KDFTime = fastKDF.Time
	cfg.KDFMemoryKiB = fastKDF.MemoryKiB
	cfg.KDFThreads = fastKDF.Threads
	return cfg
}

func record(name string, res *vault.FileImportResult) *catalog.FileRecord {
	return &catalog.FileRecord{
		Name:            name,
		Hashes:          res.Hashes,
		TotalLength:     res.TotalLength,
		LastBlockLength: res.LastBlockLength,
	}
}

func countBlocks(t *testing.T, v *vault.Vault) int {
	t.Helper()
	n := 0
	require.NoError(t, v.Store().Walk(func(blockcrypt.ContentHash) error {
		n++
		return nil
	}))
	return n
}

func TestScenario_ImportShareRemove(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()

	v, err := vault.OpenConfig(cfg, reg)
	require.NoError(t, err)
	defer v.Close()

	cat, err := catalog.Open(filepath.Join(cfg.RepoPath, vault.MetaDirName, catalog.FileName))
	require.NoError(t, err)
	defer cat.Close()

	// First run: create and persist the wrapped master key.
	wrapped, err := keyring.SetupWithParams("2468", keyring.RandomKey(), cfg.KDFParams())
	require.NoError(t, err)
	require.NoError(t, cat.SaveWrappedKey(wrapped))

	// Later run: unlock from the stored record.
	stored, err := cat.LoadWrappedKey()
	require.NoError(t, err)
	sess := keyring.NewSession()
	assert.ErrorIs(t, sess.Unlock("1357", stored), keyring.ErrWrongPin)
	require.NoError(t, sess.Unlock("2468", stored))

	// Two 10 MiB files that differ only in the final byte.
	a := make([]byte, 10*1024*1024)
	_, err = rand.Read(a)
	require.NoError(t, err)
	b := append([]byte(nil), a...)
	b[len(b)-1] ^= 0xff

	resA, err := v.ImportBytes(ctx, a, sess)
	require.NoError(t, err)
	require.NoError(t, cat.PutFile(record("a.bin", resA), sess))
	resB, err := v.ImportBytes(ctx, b, sess)
	require.NoError(t, err)
	require.NoError(t, cat.PutFile(record("b.bin", resB), sess))

	assert.Equal(t, 3, resA.NewBlocks)
	assert.Equal(t, 1, resB.NewBlocks)
	assert.Equal(t, 4, countBlocks(t, v))
	assert.Equal(t, float64(4), testutil.ToFloat64(metricPuts(t, reg, "stored")))

	got, err := v.ExportBytes(ctx, resB.Hashes, sess)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	// Removing a.bin frees only its distinct tail block.
	orphaned, err := cat.RemoveFile("a.bin", sess)
	require.NoError(t, err)
	n, err := v.DeleteUnreferenced(ctx, orphaned, cat, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, countBlocks(t, v))

	got, err = v.ExportBytes(ctx, resB.Hashes, sess)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	orphaned, err = cat.RemoveFile("b.bin", sess)
	require.NoError(t, err)
	n, err = v.DeleteUnreferenced(ctx, orphaned, cat, sess)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, countBlocks(t, v))

	sess.Lock()
	_, err = v.ImportBytes(ctx, []byte("after lock"), sess)
	assert.ErrorIs(t, err, keyring.ErrLocked)
}

func TestScenario_StillReferencedSurvives(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	v, err := vault.OpenConfig(cfg, nil)
	require.NoError(t, err)
	defer v.Close()

	cat, err := catalog.Open(filepath.Join(t.TempDir(), catalog.FileName))
	require.NoError(t, err)
	defer cat.Close()

	var mk keyring.MasterKey
	_, err = rand.Read(mk[:])
	require.NoError(t, err)
	sess := keyring.NewUnlockedSession(mk)

	res, err := v.ImportBytes(ctx, []byte("shared photo"), sess)
	require.NoError(t, err)
	require.NoError(t, cat.PutFile(record("one", res), sess))
	require.NoError(t, cat.PutFile(record("two", res), sess))

	// A stale candidate list must not delete a block another file still uses.
	n, err := v.DeleteUnreferenced(ctx, res.Hashes, cat, sess)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, countBlocks(t, v))
}

func TestScenario_SameFileTwice(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	v, err := vault.OpenConfig(cfg, nil)
	require.NoError(t, err)
	defer v.Close()

	cat, err := catalog.Open(filepath.Join(cfg.RepoPath, vault.MetaDirName, catalog.FileName))
	require.NoError(t, err)
	defer cat.Close()

	var mk keyring.MasterKey
	_, err = rand.Read(mk[:])
	require.NoError(t, err)
	sess := keyring.NewUnlockedSession(mk)

	// 10 MiB is two full blocks plus a 2 MiB tail.
	data := make([]byte, 10*1024*1024)
	_, err = rand.Read(data)
	require.NoError(t, err)

	commit := func(name string) func(*vault.FileImportResult) error {
		return func(res *vault.FileImportResult) error {
			return cat.PutFile(record(name, res), sess)
		}
	}
	first, err := v.ImportWith(ctx, bytes.NewReader(data), sess, commit("copy-1.bin"))
	require.NoError(t, err)
	second, err := v.ImportWith(ctx, bytes.NewReader(data), sess, commit("copy-2.bin"))
	require.NoError(t, err)

	assert.Equal(t, 3, first.NewBlocks)
	assert.Equal(t, 0, second.NewBlocks)
	assert.Equal(t, first.Hashes, second.Hashes)
	assert.Equal(t, 3, countBlocks(t, v))

	// The first removal leaves every block referenced by the other copy.
	orphaned, err := cat.RemoveFile("copy-1.bin", sess)
	require.NoError(t, err)
	n, err := v.DeleteUnreferenced(ctx, orphaned, cat, sess)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, countBlocks(t, v))

	orphaned, err = cat.RemoveFile("copy-2.bin", sess)
	require.NoError(t, err)
	n, err = v.DeleteUnreferenced(ctx, orphaned, cat, sess)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, countBlocks(t, v))
}

func TestOpenConfig_Invalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.RepoPath = ""
	_, err := vault.OpenConfig(cfg, nil)
	assert.ErrorIs(t, err, config.ErrEmptyRepoPath)

	cfg = testConfig(t)
	cfg.LogLevel = "chatty"
	_, err = vault.OpenConfig(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}

func TestOpenConfig_ConfigFileRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 2
	path := config.ConfigPath(cfg.RepoPath)
	require.NoError(t, config.SaveConfig(path, cfg))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	v, err := vault.OpenConfig(loaded, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.RepoPath, v.RepoPath())
	require.NoError(t, v.Close())
}

// metricPuts returns the put counter registered by OpenConfig.
func metricPuts(t *testing.T, reg *prometheus.Registry, result string) prometheus.Collector {
	t.Helper()
	return blockstore.NewMetrics(reg).PutsTotal.WithLabelValues(result)
}
