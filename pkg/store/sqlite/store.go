// Package sqlite provides an SQLite identification store: a mirror of
// every record written during an import and a batched source for
// extracting identifications into new datasets.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/importer"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	schemaVersion    = 1
)

var ErrMirrorClosed = errors.New("sqlite: mirror is already finalized or discarded")

// Store is an identification database file
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// createTables creates the required database schema
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS IdentificationTable (
		IdentificationId INTEGER PRIMARY KEY,
		Sequence TEXT NOT NULL,
		ModifiedSequence TEXT,
		Charge INTEGER,
		Instrument TEXT,
		Provenance TEXT,
		TotalIntensity DOUBLE,
		PrecursorMass DOUBLE,
		PrecursorIntensity DOUBLE,
		PrecursorCharge INTEGER,
		blobMass BLOB,
		blobIntensity BLOB
	);

	CREATE TABLE IF NOT EXISTS FragmentIonTable (
		FragmentIonId INTEGER PRIMARY KEY,
		IdentificationId INTEGER REFERENCES IdentificationTable(IdentificationId),
		Label TEXT,
		Mass DOUBLE,
		Intensity DOUBLE,
		IonNumber INTEGER,
		MassError DOUBLE
	);

	CREATE INDEX IF NOT EXISTS FragmentIonIdentification ON FragmentIonTable(IdentificationId);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Identifications INTEGER,
		FragmentIons INTEGER,
		Description TEXT
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Mirror receives a copy of the records of one import run inside a single
// transaction. Rows get their own keys, so several runs can share a store.
type Mirror struct {
	tx          *sql.Tx
	identStmt   *sql.Stmt
	ionStmt     *sql.Stmt
	description string

	pending map[int]*core.SpectrumPeakList // peak lists waiting for their identification
	keys    map[int]int64                  // run identification id -> row key
	ions    int
	done    bool
}

// Mirror starts a transaction for one run. description is recorded in
// the header table when the run is finalized.
func (s *Store) Mirror(description string) (*Mirror, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	m := &Mirror{
		tx:          tx,
		description: description,
		pending:     make(map[int]*core.SpectrumPeakList),
		keys:        make(map[int]int64),
	}
	if err := m.prepareStatements(); err != nil {
		tx.Rollback()
		return nil, err
	}
	return m, nil
}

// prepareStatements prepares SQL statements for batch insertion
func (m *Mirror) prepareStatements() error {
	var err error

	m.identStmt, err = m.tx.Prepare(`
		INSERT INTO IdentificationTable (
			Sequence, ModifiedSequence, Charge, Instrument, Provenance,
			TotalIntensity, PrecursorMass, PrecursorIntensity, PrecursorCharge,
			blobMass, blobIntensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare identification statement: %w", err)
	}

	m.ionStmt, err = m.tx.Prepare(`
		INSERT INTO FragmentIonTable (
			IdentificationId, Label, Mass, Intensity, IonNumber, MassError
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare fragment ion statement: %w", err)
	}

	return nil
}

// WriteSpectrum keeps the peak list until its identification is written
func (m *Mirror) WriteSpectrum(id int, spec *core.SpectrumPeakList) error {
	if m.done {
		return ErrMirrorClosed
	}
	m.pending[id] = spec
	return nil
}

// WriteIdentification inserts an identification with its peak list
func (m *Mirror) WriteIdentification(id *core.Identification) error {
	if m.done {
		return ErrMirrorClosed
	}
	spec, ok := m.pending[id.ID]
	if !ok {
		spec = &core.SpectrumPeakList{}
	}
	delete(m.pending, id.ID)

	res, err := m.identStmt.Exec(
		id.Sequence,                           // Sequence
		id.ModifiedSequence,                   // ModifiedSequence
		id.Charge,                             // Charge
		id.Instrument,                         // Instrument
		id.Provenance,                         // Provenance
		id.TotalIntensity,                     // TotalIntensity
		spec.PrecursorMZ,                      // PrecursorMass
		spec.PrecursorIntensity,               // PrecursorIntensity
		spec.Charge,                           // PrecursorCharge
		encodePeaksFloat64(spec.Peaks, true),  // blobMass
		encodePeaksFloat64(spec.Peaks, false), // blobIntensity
	)
	if err != nil {
		return fmt.Errorf("failed to insert identification: %w", err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read identification key: %w", err)
	}
	m.keys[id.ID] = key
	return nil
}

// WriteFragmentIon inserts a fragment ion of an identification written before
func (m *Mirror) WriteFragmentIon(rec *core.FragmentIonRecord) error {
	if m.done {
		return ErrMirrorClosed
	}
	key, ok := m.keys[rec.IdentificationID]
	if !ok {
		return fmt.Errorf("fragment ion %d references unknown identification %d", rec.ID, rec.IdentificationID)
	}
	_, err := m.ionStmt.Exec(key, rec.Label, rec.MZ, rec.Intensity, rec.Number, rec.MassError)
	if err != nil {
		return fmt.Errorf("failed to insert fragment ion: %w", err)
	}
	m.ions++
	return nil
}

// Finalize writes the header row and commits the run
func (m *Mirror) Finalize() error {
	if m.done {
		return ErrMirrorClosed
	}
	m.done = true
	m.closeStatements()

	_, err := m.tx.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, Identifications, FragmentIons, Description)
		VALUES (?, ?, ?, ?, ?)
	`, schemaVersion, time.Now().Format(headerDateFormat), len(m.keys), m.ions, m.description)
	if err != nil {
		m.tx.Rollback()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	if err := m.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Discard rolls back everything written in the run
func (m *Mirror) Discard() error {
	if m.done {
		return nil
	}
	m.done = true
	m.closeStatements()
	if err := m.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	return nil
}

func (m *Mirror) closeStatements() {
	if m.identStmt != nil {
		m.identStmt.Close()
	}
	if m.ionStmt != nil {
		m.ionStmt.Close()
	}
}

// Keys returns the keys of all identifications in ascending order
func (s *Store) Keys(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT IdentificationId FROM IdentificationTable ORDER BY IdentificationId`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identification keys: %w", err)
	}
	defer rows.Close()

	var keys []int64
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan identification key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Load returns the identifications for keys in the order given. Keys are
// queried as one range, so callers pass ascending batches.
func (s *Store) Load(ctx context.Context, keys []int64) ([]importer.SourceRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	lo, hi := keys[0], keys[0]
	wanted := make(map[int64]int, len(keys))
	for i, k := range keys {
		wanted[k] = i
		lo = min(lo, k)
		hi = max(hi, k)
	}

	records := make([]importer.SourceRecord, len(keys))
	found := make([]bool, len(keys))

	rows, err := s.db.QueryContext(ctx, `
		SELECT IdentificationId, Sequence, ModifiedSequence, Charge, Instrument, Provenance,
			TotalIntensity, PrecursorMass, PrecursorIntensity, PrecursorCharge, blobMass, blobIntensity
		FROM IdentificationTable
		WHERE IdentificationId BETWEEN ? AND ?
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifications: %w", err)
	}
	for rows.Next() {
		var (
			key                 int64
			rec                 importer.SourceRecord
			modSeq, instr, prov sql.NullString
			mzBlob, intBlob     []byte
		)
		err := rows.Scan(&key, &rec.Identification.Sequence, &modSeq, &rec.Identification.Charge,
			&instr, &prov, &rec.Identification.TotalIntensity,
			&rec.Spectrum.PrecursorMZ, &rec.Spectrum.PrecursorIntensity, &rec.Spectrum.Charge,
			&mzBlob, &intBlob)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan identification: %w", err)
		}
		i, ok := wanted[key]
		if !ok {
			continue
		}
		rec.Identification.ID = int(key)
		rec.Identification.ModifiedSequence = modSeq.String
		rec.Identification.Instrument = instr.String
		rec.Identification.Provenance = prov.String
		rec.Spectrum.Peaks = decodePeaks(mzBlob, intBlob)
		records[i] = rec
		found[i] = true
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read identifications: %w", err)
	}
	for i, ok := range found {
		if !ok {
			return nil, fmt.Errorf("identification %d not found", keys[i])
		}
	}

	ions, err := s.db.QueryContext(ctx, `
		SELECT FragmentIonId, IdentificationId, Label, Mass, Intensity, IonNumber, MassError
		FROM FragmentIonTable
		WHERE IdentificationId BETWEEN ? AND ?
		ORDER BY FragmentIonId
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragment ions: %w", err)
	}
	defer ions.Close()
	for ions.Next() {
		var (
			ion core.FragmentIonRecord
			key int64
		)
		if err := ions.Scan(&ion.ID, &key, &ion.Label, &ion.MZ, &ion.Intensity, &ion.Number, &ion.MassError); err != nil {
			return nil, fmt.Errorf("failed to scan fragment ion: %w", err)
		}
		i, ok := wanted[key]
		if !ok {
			continue
		}
		ion.IdentificationID = int(key)
		records[i].FragmentIons = append(records[i].FragmentIons, ion)
	}
	if err := ions.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fragment ions: %w", err)
	}
	return records, nil
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []core.Peak, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		var value float64
		if useMZ {
			value = peak.MZ
		} else {
			value = peak.Intensity
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// decodePeaks reverses encodePeaksFloat64 for a pair of blobs
func decodePeaks(mzBlob, intBlob []byte) []core.Peak {
	n := min(len(mzBlob), len(intBlob)) / 8
	if n == 0 {
		return nil
	}
	peaks := make([]core.Peak, n)
	for i := range peaks {
		peaks[i].MZ = math.Float64frombits(binary.LittleEndian.Uint64(mzBlob[i*8:]))
		peaks[i].Intensity = math.Float64frombits(binary.LittleEndian.Uint64(intBlob[i*8:]))
	}
	return peaks
}
