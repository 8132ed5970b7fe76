package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalibrationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence(filepath.Join(dir, "data"))

	raw := []byte("camera_matrix:\n  fx: 600.0\n  fy: 600.0\n")
	require.NoError(t, p.SaveCalibration("cam0", raw))

	doc, err := p.LoadCalibration("cam0")
	require.NoError(t, err)
	require.Contains(t, doc, "camera_matrix")

	names, err := p.ListCalibrations()
	require.NoError(t, err)
	require.Contains(t, names, "cam0")
}

func TestCalibrationRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence(filepath.Join(dir, "data"))

	err := p.SaveCalibration("../../etc/passwd", []byte("x: 1\n"))
	require.Error(t, err)
}

func TestCalibrationRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence(filepath.Join(dir, "data"))

	err := p.SaveCalibration("bad", []byte("{not: [valid"))
	require.Error(t, err)
}
