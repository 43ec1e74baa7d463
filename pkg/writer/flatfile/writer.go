// Package flatfile writes and reads the per-dataset flat file layout:
//
//	<dataset>/identifications.txt  count line, then one identification per line
//	<dataset>/fragmentIons.txt     one matched fragment ion per line
//	<dataset>/spectra/<id>.pkl     precursor line, then one peak per line
//
// Fields are tab separated and every record ends with a newline.
package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

const (
	IdentificationsFile = "identifications.txt"
	FragmentIonsFile    = "fragmentIons.txt"
	SpectraDir          = "spectra"

	identificationsTemp = "identifications.tmp"
)

// ErrExists is returned when the dataset folder is already present.
var ErrExists = errors.New("flatfile: dataset folder already exists")

// Writer handles writing one dataset folder
type Writer struct {
	dir        string
	identFile  *os.File
	ident      *bufio.Writer
	ionFile    *os.File
	ions       *bufio.Writer
	spectraDir bool
	count      int
	closed     bool
}

// NewWriter creates the dataset folder and opens its record files. The
// folder must not exist.
func NewWriter(dir string) (*Writer, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat dataset folder: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset folder: %w", err)
	}

	w := &Writer{dir: dir}

	var err error
	w.identFile, err = os.Create(filepath.Join(dir, identificationsTemp))
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create identification file: %w", err)
	}
	w.ionFile, err = os.Create(filepath.Join(dir, FragmentIonsFile))
	if err != nil {
		w.identFile.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create fragment ion file: %w", err)
	}
	w.ident = bufio.NewWriter(w.identFile)
	w.ions = bufio.NewWriter(w.ionFile)

	return w, nil
}

// Dir returns the dataset folder
func (w *Writer) Dir() string {
	return w.dir
}

// Count returns the number of identifications written so far
func (w *Writer) Count() int {
	return w.count
}

// WriteSpectrum writes the peak list file of one identification, creating
// the spectra folder on first use.
func (w *Writer) WriteSpectrum(id int, spec *core.SpectrumPeakList) error {
	if w.closed {
		return errors.New("flatfile: writer is closed")
	}
	if !w.spectraDir {
		if err := os.MkdirAll(filepath.Join(w.dir, SpectraDir), 0o755); err != nil {
			return fmt.Errorf("failed to create spectra folder: %w", err)
		}
		w.spectraDir = true
	}

	path := filepath.Join(w.dir, SpectraDir, core.SpectrumFileName(id))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create spectrum file: %w", err)
	}

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "%s\t%s\t%d\n", formatFloat(spec.PrecursorMZ), formatFloat(spec.PrecursorIntensity), spec.Charge)
	for _, p := range spec.Peaks {
		bw.WriteString(formatFloat(p.MZ))
		bw.WriteByte('\t')
		bw.WriteString(formatFloat(p.Intensity))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write spectrum file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close spectrum file: %w", err)
	}
	return nil
}

// WriteIdentification appends one identification record
func (w *Writer) WriteIdentification(id *core.Identification) error {
	if w.closed {
		return errors.New("flatfile: writer is closed")
	}
	_, err := fmt.Fprintf(w.ident, "%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
		id.ID,
		id.Sequence,
		id.ModifiedSequence,
		id.Charge,
		id.Instrument,
		id.SpectrumFile,
		id.ID,
		formatFloat(id.TotalIntensity),
		id.Provenance,
	)
	if err != nil {
		return fmt.Errorf("failed to write identification: %w", err)
	}
	w.count++
	return nil
}

// WriteFragmentIon appends one fragment ion record
func (w *Writer) WriteFragmentIon(rec *core.FragmentIonRecord) error {
	if w.closed {
		return errors.New("flatfile: writer is closed")
	}
	_, err := fmt.Fprintf(w.ions, "%d\t%d\t%s\t%s\t%s\t%d\t%s\n",
		rec.ID,
		rec.IdentificationID,
		rec.Label,
		formatFloat(rec.MZ),
		formatFloat(rec.Intensity),
		rec.Number,
		formatFloat(rec.MassError),
	)
	if err != nil {
		return fmt.Errorf("failed to write fragment ion: %w", err)
	}
	return nil
}

// Finalize flushes all records and writes identifications.txt with the
// identification count as its first line. The count-prefixed file only
// exists once this returns nil.
func (w *Writer) Finalize() error {
	if w.closed {
		return errors.New("flatfile: writer is closed")
	}
	if err := w.Close(); err != nil {
		return err
	}

	tempPath := filepath.Join(w.dir, identificationsTemp)
	finalPath := filepath.Join(w.dir, IdentificationsFile)

	if err := prependCount(tempPath, finalPath, w.count); err != nil {
		os.Remove(finalPath)
		return err
	}
	if err := os.Remove(tempPath); err != nil {
		return fmt.Errorf("failed to remove temporary identification file: %w", err)
	}
	return nil
}

func prependCount(tempPath, finalPath string, count int) error {
	in, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("failed to open temporary identification file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("failed to create identification file: %w", err)
	}

	bw := bufio.NewWriter(out)
	bw.WriteString(strconv.Itoa(count))
	bw.WriteByte('\n')
	if _, err := io.Copy(bw, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy identifications: %w", err)
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("failed to write identification file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close identification file: %w", err)
	}
	return nil
}

// Close flushes and releases the open record files without finalizing.
// It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.ident.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush identifications: %w", err))
	}
	if err := w.identFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close identifications: %w", err))
	}
	if err := w.ions.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush fragment ions: %w", err))
	}
	if err := w.ionFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close fragment ions: %w", err))
	}
	return errors.Join(errs...)
}

// Discard releases the record files and removes the whole dataset folder.
func (w *Writer) Discard() error {
	w.Close() // flush errors do not matter once the folder is gone
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to remove dataset folder: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
