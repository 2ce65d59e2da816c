package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecutor_Shell(t *testing.T) {
	dir := t.TempDir()
	exec := NewLocalExecutor(dir)

	out, err := exec.Exec(context.Background(), ShellCommand("echo hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Stdout)
}

func TestLocalExecutor_ShellFailureReturnsError(t *testing.T) {
	exec := NewLocalExecutor(t.TempDir())
	_, err := exec.Exec(context.Background(), ShellCommand("exit 1"))
	require.Error(t, err)
}

func TestLocalExecutor_WriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	exec := NewLocalExecutor(dir)

	_, err := exec.Exec(context.Background(), WriteFileCommand("note.txt", "hello world"))
	require.NoError(t, err)

	out, err := exec.Exec(context.Background(), ReadFileCommand("note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Stdout)

	data, err := os.ReadFile(filepath.Join(dir, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestLocalExecutor_WriteFileCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	exec := NewLocalExecutor(dir)

	_, err := exec.Exec(context.Background(), WriteFileCommand("nested/deep/note.txt", "x"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestLocalExecutor_ShebangScriptRunsThroughInterpreter(t *testing.T) {
	exec := NewLocalExecutor(t.TempDir())
	out, err := exec.Exec(context.Background(), ShellCommand("#!/usr/bin/env sh\necho from-script"))
	require.NoError(t, err)
	assert.Equal(t, "from-script\n", out.Stdout)
}
