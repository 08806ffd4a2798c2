package dataset

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/geodist"
)

// ReadPoints loads identified locations for distance generation. Shapefiles
// (.shp, or a .zip holding one) take the id from idField and reduce polygons
// to their centroid. Tables (.csv, .xlsx) need id and x/y (or lon/lat)
// columns.
func ReadPoints(ctx context.Context, path, idField string) ([]geodist.Point, error) {
	if idField == "" {
		idField = "id"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadPointsShapefile(path, idField)
	case ".zip":
		dir, err := os.MkdirTemp("", "efl-shp-")
		if err != nil {
			return nil, eris.Wrap(err, "dataset: create extract dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck
		if err := extractZIP(path, dir); err != nil {
			return nil, eris.Wrapf(err, "dataset: extract %s", path)
		}
		shpPath, err := findFileByExt(dir, ".shp")
		if err != nil {
			return nil, err
		}
		return ReadPointsShapefile(shpPath, idField)
	default:
		t, err := ReadTable(ctx, path)
		if err != nil {
			return nil, err
		}
		return pointsFromTable(t, idField)
	}
}

func pointsFromTable(t *Table, idField string) ([]geodist.Point, error) {
	idIdx := t.Index(idField)
	xIdx, yIdx := t.Index("x"), t.Index("y")
	if xIdx < 0 || yIdx < 0 {
		xIdx, yIdx = t.Index("lon"), t.Index("lat")
	}
	if idIdx < 0 || xIdx < 0 || yIdx < 0 {
		return nil, &ValidationError{File: t.Name, Problems: []string{"point tables need " + idField + " and x/y (or lon/lat) columns"}}
	}

	var problems []string
	points := make([]geodist.Point, 0, len(t.Rows))
	for i, row := range t.Rows {
		id := t.Cell(row, idIdx)
		x, errX := strconv.ParseFloat(t.Cell(row, xIdx), 64)
		y, errY := strconv.ParseFloat(t.Cell(row, yIdx), 64)
		if id == "" || errX != nil || errY != nil {
			problems = append(problems, "line "+strconv.Itoa(t.Line(i))+": id and numeric coordinates are required")
			continue
		}
		points = append(points, geodist.NewPoint(id, x, y))
	}
	if len(problems) > 0 {
		return nil, &ValidationError{File: t.Name, Problems: problems}
	}
	return points, nil
}

// ReadPointsShapefile loads a point or polygon shapefile.
func ReadPointsShapefile(path, idField string) ([]geodist.Point, error) {
	log := zap.L().With(zap.String("component", "dataset.shapefile"), zap.String("path", path))

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	idIdx := fieldIndex(reader, idField)
	if idIdx < 0 {
		return nil, eris.Errorf("dataset: shapefile field %q not found", idField)
	}

	var points []geodist.Point
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		g := shapeToGeom(shape)
		if id == "" || g == nil {
			skipped++
			continue
		}
		p, err := geodist.Representative(id, g)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "dataset: read shapefile")
	}
	if skipped > 0 {
		log.Warn("dataset: skipped shapefile records without id or supported geometry", zap.Int("skipped", skipped))
	}
	log.Info("dataset: shapefile loaded", zap.Int("points", len(points)))
	return points, nil
}

// shapeToGeom converts points and polygons. Other shapes yield nil.
func shapeToGeom(s shp.Shape) geom.T {
	switch shape := s.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{shape.X, shape.Y})
	case *shp.Polygon:
		return polygonToGeom(shape)
	default:
		return nil
	}
}

// polygonToGeom builds a polygon from the shapefile's rings, outer ring
// first.
func polygonToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	var flat []float64
	var ends []int
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// fieldIndex returns the index of a named attribute field, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// extractZIP extracts the regular files of a ZIP archive into destDir,
// flattening directories.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return out.Close()
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "dataset: read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("dataset: no %s file found in %s", ext, dir)
}
