package flatfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

// Dataset is the content of a finalized dataset folder
type Dataset struct {
	Declared        int // count from the first line of identifications.txt
	Identifications []core.Identification
	FragmentIons    []core.FragmentIonRecord
}

// ReadDataset reads identifications.txt and fragmentIons.txt of a dataset
func ReadDataset(dir string) (*Dataset, error) {
	ds := &Dataset{}

	err := scanLines(filepath.Join(dir, IdentificationsFile), func(lineNum int, line string) error {
		if lineNum == 1 {
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				return fmt.Errorf("invalid identification count: %w", err)
			}
			ds.Declared = n
			return nil
		}
		id, err := parseIdentification(line)
		if err != nil {
			return err
		}
		ds.Identifications = append(ds.Identifications, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = scanLines(filepath.Join(dir, FragmentIonsFile), func(lineNum int, line string) error {
		rec, err := parseFragmentIon(line)
		if err != nil {
			return err
		}
		ds.FragmentIons = append(ds.FragmentIons, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ds, nil
}

// ReadSpectrum reads the peak list file of one identification
func ReadSpectrum(dir string, id int) (*core.SpectrumPeakList, error) {
	spec := &core.SpectrumPeakList{}
	path := filepath.Join(dir, SpectraDir, core.SpectrumFileName(id))

	err := scanLines(path, func(lineNum int, line string) error {
		fields := strings.Split(line, "\t")
		if lineNum == 1 {
			if len(fields) != 3 {
				return fmt.Errorf("expected 3 header fields, got %d", len(fields))
			}
			var err error
			if spec.PrecursorMZ, err = strconv.ParseFloat(fields[0], 64); err != nil {
				return fmt.Errorf("invalid precursor m/z: %w", err)
			}
			if spec.PrecursorIntensity, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return fmt.Errorf("invalid precursor intensity: %w", err)
			}
			if spec.Charge, err = strconv.Atoi(fields[2]); err != nil {
				return fmt.Errorf("invalid charge: %w", err)
			}
			return nil
		}
		if len(fields) != 2 {
			return fmt.Errorf("expected 2 peak fields, got %d", len(fields))
		}
		mz, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("invalid m/z value: %w", err)
		}
		intensity, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("invalid intensity value: %w", err)
		}
		spec.Peaks = append(spec.Peaks, core.Peak{MZ: mz, Intensity: intensity})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func scanLines(path string, fn func(lineNum int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := fn(lineNum, scanner.Text()); err != nil {
			return fmt.Errorf("%s line %d: %w", filepath.Base(path), lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", filepath.Base(path), err)
	}
	return nil
}

func parseIdentification(line string) (core.Identification, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 9 {
		return core.Identification{}, fmt.Errorf("expected 9 fields, got %d", len(fields))
	}

	var id core.Identification
	var err error
	if id.ID, err = strconv.Atoi(fields[0]); err != nil {
		return id, fmt.Errorf("invalid id: %w", err)
	}
	id.Sequence = fields[1]
	id.ModifiedSequence = fields[2]
	if id.Charge, err = strconv.Atoi(fields[3]); err != nil {
		return id, fmt.Errorf("invalid charge: %w", err)
	}
	id.Instrument = fields[4]
	id.SpectrumFile = fields[5]
	if fields[6] != fields[0] {
		return id, fmt.Errorf("id columns differ: %s and %s", fields[0], fields[6])
	}
	if id.TotalIntensity, err = strconv.ParseFloat(fields[7], 64); err != nil {
		return id, fmt.Errorf("invalid total intensity: %w", err)
	}
	id.Provenance = fields[8]
	return id, nil
}

func parseFragmentIon(line string) (core.FragmentIonRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return core.FragmentIonRecord{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}

	var rec core.FragmentIonRecord
	var err error
	if rec.ID, err = strconv.Atoi(fields[0]); err != nil {
		return rec, fmt.Errorf("invalid ion counter: %w", err)
	}
	if rec.IdentificationID, err = strconv.Atoi(fields[1]); err != nil {
		return rec, fmt.Errorf("invalid identification id: %w", err)
	}
	rec.Label = fields[2]
	if rec.MZ, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return rec, fmt.Errorf("invalid m/z: %w", err)
	}
	if rec.Intensity, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return rec, fmt.Errorf("invalid intensity: %w", err)
	}
	if rec.Number, err = strconv.Atoi(fields[5]); err != nil {
		return rec, fmt.Errorf("invalid ion number: %w", err)
	}
	if rec.MassError, err = strconv.ParseFloat(fields[6], 64); err != nil {
		return rec, fmt.Errorf("invalid mass error: %w", err)
	}
	return rec, nil
}

// Check verifies the structural rules of a finalized dataset: the declared
// count matches, identification ids run 1..N, fragment ion counters strictly
// increase and reference known identifications, and every identification has
// a peak list file.
func Check(dir string) (*Dataset, error) {
	ds, err := ReadDataset(dir)
	if err != nil {
		return nil, err
	}

	if ds.Declared != len(ds.Identifications) {
		return ds, fmt.Errorf("declared %d identifications, found %d", ds.Declared, len(ds.Identifications))
	}
	for i, id := range ds.Identifications {
		if id.ID != i+1 {
			return ds, fmt.Errorf("identification %d has id %d", i+1, id.ID)
		}
		if id.SpectrumFile != core.SpectrumFileName(id.ID) {
			return ds, fmt.Errorf("identification %d references %s", id.ID, id.SpectrumFile)
		}
		if _, err := os.Stat(filepath.Join(dir, SpectraDir, id.SpectrumFile)); err != nil {
			return ds, fmt.Errorf("identification %d: %w", id.ID, err)
		}
	}
	last := 0
	for _, rec := range ds.FragmentIons {
		if rec.ID <= last {
			return ds, fmt.Errorf("fragment ion counter %d does not increase", rec.ID)
		}
		last = rec.ID
		if rec.IdentificationID < 1 || rec.IdentificationID > len(ds.Identifications) {
			return ds, fmt.Errorf("fragment ion %d references unknown identification %d", rec.ID, rec.IdentificationID)
		}
	}
	return ds, nil
}
