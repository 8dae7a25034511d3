package ingest

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// shapefileParts are the sidecar extensions read alongside a .shp.
var shapefileParts = map[string]bool{".shp": true, ".shx": true, ".dbf": true, ".prj": true, ".cpg": true}

// extractShapefiles unpacks the shapefile members of a ZIP archive into
// destDir and returns the .shp paths found, sorted.
func extractShapefiles(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, geoerr.NotFound("ingest: open archive", "cannot open %s: %v", zipPath, err)
	}
	defer r.Close() //nolint:errcheck

	var shps []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !shapefileParts[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		path, err := extractEntry(f, destDir)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(filepath.Ext(path), ".shp") {
			shps = append(shps, path)
		}
	}
	if len(shps) == 0 {
		return nil, geoerr.NotFound("ingest: open archive", "no shapefile in %s", zipPath)
	}
	sort.Strings(shps)
	return shps, nil
}

// extractEntry writes one archive member below destDir, keeping its
// relative path.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("ingest: illegal archive path %q", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create archive directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "ingest: open archive entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: create %s", destPath)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "ingest: extract %s", f.Name)
	}
	return destPath, eris.Wrapf(out.Close(), "ingest: close %s", destPath)
}

// expandArchives replaces every .zip in paths with the shapefiles it holds.
// The returned cleanup removes the extraction directory.
func expandArchives(paths []string) ([]string, func(), error) {
	cleanup := func() {}
	var (
		out    []string
		tmpDir string
	)
	for _, p := range paths {
		if !strings.EqualFold(filepath.Ext(p), ".zip") {
			out = append(out, p)
			continue
		}
		if tmpDir == "" {
			d, err := os.MkdirTemp("", "sows-ingest-*")
			if err != nil {
				return nil, cleanup, eris.Wrap(err, "ingest: create temp dir")
			}
			tmpDir = d
			cleanup = func() { _ = os.RemoveAll(d) }
		}
		dest := filepath.Join(tmpDir, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
		shps, err := extractShapefiles(p, dest)
		if err != nil {
			return nil, cleanup, err
		}
		out = append(out, shps...)
	}
	return out, cleanup, nil
}
