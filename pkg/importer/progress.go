package importer

// ProgressSink receives progress of a run. The pipeline sets a label and
// total per input file and advances once per query or spectrum.
type ProgressSink interface {
	SetTotal(total int)
	Advance()
	SetLabel(label string)
}

// NopProgress discards progress
type NopProgress struct{}

func (NopProgress) SetTotal(int)    {}
func (NopProgress) Advance()        {}
func (NopProgress) SetLabel(string) {}

// NoticeKind classifies a non-fatal notice
type NoticeKind int

const (
	// NoticeUnmatchedIon is a theoretical ion without an observed peak in tolerance
	NoticeUnmatchedIon NoticeKind = iota
	// NoticeSkippedRecord is a query or spectrum that could not be read
	NoticeSkippedRecord
)

// Notice is a non-fatal problem reported while importing. The run continues.
type Notice struct {
	Kind             NoticeKind
	File             string
	IdentificationID int // 0 when not yet assigned
	Ion              string
	MZ               float64
	Message          string
}

// NoticeSink receives notices as they occur
type NoticeSink interface {
	Notice(n Notice)
}

// NoticeFunc adapts a function to a NoticeSink
type NoticeFunc func(Notice)

func (f NoticeFunc) Notice(n Notice) { f(n) }
