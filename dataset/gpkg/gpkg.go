// Package gpkg implements the GeoPackage dataset codec on the pure Go
// modernc SQLite driver. Every feature table listed in gpkg_contents is a
// layer. Z and M ordinates are read from both ISO and EWKB typed
// geometries and written as ISO WKB.
package gpkg

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/tingold/geoprep/dataset"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
	geomColumn    = "geom"
	fidColumn     = "fid"
	dateLayout    = "2006-01-02T15:04:05.000Z"
)

// Codec reads and writes GeoPackage files.
type Codec struct{}

// New returns the GeoPackage codec.
func New() Codec { return Codec{} }

func (Codec) Name() string             { return "gpkg" }
func (Codec) Extensions() []string     { return []string{".gpkg"} }
func (Codec) MultiLayer() bool         { return true }
func (Codec) ReservedFields() []string { return []string{fidColumn, geomColumn} }

// Decode reads every feature table of the GeoPackage at path.
func (Codec) Decode(path string) ([]*dataset.LayerData, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gpkg: open: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT c.table_name, g.column_name, g.geometry_type_name, g.srs_id
		FROM gpkg_contents c JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features' ORDER BY c.rowid`)
	if err != nil {
		return nil, fmt.Errorf("gpkg: list layers: %w", err)
	}
	type tableInfo struct {
		name, geom, geomType string
		srsID                int
	}
	var tables []tableInfo
	for rows.Next() {
		var ti tableInfo
		if err := rows.Scan(&ti.name, &ti.geom, &ti.geomType, &ti.srsID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("gpkg: list layers: %w", err)
		}
		tables = append(tables, ti)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gpkg: list layers: %w", err)
	}

	layers := make([]*dataset.LayerData, 0, len(tables))
	for _, ti := range tables {
		layer, err := readTable(db, ti.name, ti.geom)
		if err != nil {
			return nil, fmt.Errorf("gpkg: layer %q: %w", ti.name, err)
		}
		layer.Schema.GeometryType = fromGeometryTypeName(ti.geomType)
		layer.Schema.SRID = epsgCode(db, ti.srsID)
		layers = append(layers, layer)
	}
	return layers, nil
}

func readTable(db *sql.DB, table, geom string) (*dataset.LayerData, error) {
	cols, err := db.Query(`SELECT name, type, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	layer := &dataset.LayerData{Name: table}
	pk := ""
	for cols.Next() {
		var name, typ string
		var isPK int
		if err := cols.Scan(&name, &typ, &isPK); err != nil {
			cols.Close()
			return nil, err
		}
		switch {
		case isPK > 0 && pk == "":
			pk = name
		case name == geom:
		default:
			layer.Schema.Fields = append(layer.Schema.Fields, dataset.Field{Name: name, Type: fromColumnType(typ)})
		}
	}
	cols.Close()
	if err := cols.Err(); err != nil {
		return nil, err
	}

	selected := []string{"rowid", quote(geom)}
	if pk != "" {
		selected[0] = quote(pk)
	}
	for _, f := range layer.Schema.Fields {
		selected = append(selected, quote(f.Name))
	}
	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY 1", strings.Join(selected, ", "), quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var fid int64
		var blob []byte
		values := make([]any, len(layer.Schema.Fields))
		dest := []any{&fid, &blob}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		feat := &dataset.Feature{FID: fid, Attributes: make(map[string]any, len(values))}
		for i, f := range layer.Schema.Fields {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if v != nil {
				if c, err := dataset.Coerce(v, f.Type); err == nil {
					v = c
				}
			}
			feat.Attributes[f.Name] = v
		}
		if blob != nil {
			g, err := decodeBlob(blob)
			if err != nil {
				return nil, fmt.Errorf("fid %d: %w", fid, err)
			}
			feat.Geometry = g
		}
		layer.Features = append(layer.Features, feat)
	}
	return layer, rows.Err()
}

// epsgCode resolves a GeoPackage srs_id to an EPSG code. The undefined
// systems -1 and 0 map to 0.
func epsgCode(db *sql.DB, srsID int) int {
	if srsID <= 0 {
		return 0
	}
	var org string
	var code int
	err := db.QueryRow(`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srsID).
		Scan(&org, &code)
	if err != nil || !strings.EqualFold(org, "EPSG") {
		return srsID
	}
	return code
}

// Encode writes layers into a new GeoPackage at path. The file must not exist.
func (Codec) Encode(path string, layers []*dataset.LayerData) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("gpkg: open: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("gpkg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
		metadataDDL,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("gpkg: init: %w", err)
		}
	}

	for _, layer := range layers {
		if err := writeLayer(tx, layer); err != nil {
			return fmt.Errorf("gpkg: layer %q: %w", layer.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("gpkg: commit: %w", err)
	}
	return nil
}

const metadataDDL = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
	srs_id INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
);
INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AXIS["Latitude",NORTH],AXIS["Longitude",EAST],AUTHORITY["EPSG","4326"]]', 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');
`

func writeLayer(tx *sql.Tx, layer *dataset.LayerData) error {
	srid := layer.Schema.SRID
	if srid != 0 {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, 'undefined', '')`,
			fmt.Sprintf("EPSG:%d", srid), srid, srid); err != nil {
			return err
		}
	}

	defs := []string{quote(fidColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", quote(geomColumn) + " " + toGeometryTypeName(layer.Schema.GeometryType)}
	for _, f := range layer.Schema.Fields {
		defs = append(defs, quote(f.Name)+" "+toColumnType(f.Type))
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(layer.Name), strings.Join(defs, ", "))); err != nil {
		return err
	}

	var minX, minY, maxX, maxY any
	if b, ok := bounds(layer.Features); ok {
		minX, minY, maxX, maxY = b.Min[0], b.Min[1], b.Max[0], b.Max[1]
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`, layer.Name, layer.Name, minX, minY, maxX, maxY, srid); err != nil {
		return err
	}
	z, m := ordinateFlags(layer.Features)
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, ?, ?)`,
		layer.Name, geomColumn, toGeometryTypeName(layer.Schema.GeometryType), srid, z, m); err != nil {
		return err
	}

	cols := []string{quote(fidColumn), quote(geomColumn)}
	marks := []string{"?", "?"}
	for _, f := range layer.Schema.Fields {
		cols = append(cols, quote(f.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(layer.Name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, feat := range layer.Features {
		args := []any{feat.FID, nil}
		if feat.Geometry != nil && feat.Geometry.Shape != nil {
			blob, err := encodeBlob(feat.Geometry, srid)
			if err != nil {
				return fmt.Errorf("fid %d: %w", feat.FID, err)
			}
			args[1] = blob
		}
		for _, f := range layer.Schema.Fields {
			v, err := dataset.Coerce(feat.Attributes[f.Name], f.Type)
			if err != nil {
				return fmt.Errorf("fid %d: field %q: %w", feat.FID, f.Name, err)
			}
			if t, ok := v.(time.Time); ok {
				v = t.UTC().Format(dateLayout)
			}
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("fid %d: %w", feat.FID, err)
		}
	}
	return nil
}

// ordinateFlags returns the gpkg_geometry_columns z and m values: 0 when
// no geometry has the ordinate, 1 when every one does and 2 otherwise.
func ordinateFlags(features []*dataset.Feature) (z, m int) {
	var n, nz, nm int
	for _, f := range features {
		if f.Geometry == nil || f.Geometry.Shape == nil {
			continue
		}
		n++
		if f.Geometry.HasZ() {
			nz++
		}
		if f.Geometry.HasM() {
			nm++
		}
	}
	flag := func(k int) int {
		switch {
		case k == 0:
			return 0
		case k == n:
			return 1
		}
		return 2
	}
	return flag(nz), flag(nm)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
