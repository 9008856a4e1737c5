package overrides

// NotAppliedStateID is the catalog's "Not Applied" current-state sentinel.
const NotAppliedStateID int64 = 1

// Intent is the caller-supplied part of an override record.
// Zero values mean absent.
type Intent struct {
	TagNumber              string
	Description            string
	TypeID                 int64
	MethodID               int64
	AppliedStateID         int64
	RemovedStateID         int64
	Comment                string
	AdditionalValueApplied string
	AdditionalValueRemoved string
	// ServerID is set when the intent edits an already persisted record.
	ServerID int64
}

// OverrideRecord is one override of a certificate.
type OverrideRecord struct {
	TagNumber              string
	Description            string
	TypeID                 int64
	MethodID               int64
	AppliedStateID         int64
	RemovedStateID         int64
	Comment                string
	AdditionalValueApplied string
	AdditionalValueRemoved string

	CurrentStateID int64
	OrderIndex     int
	CertificateID  int64
	ServerID       int64

	// Label is display only.
	Label string
}

// IsNew reports whether the record has no server identity yet.
func (r OverrideRecord) IsNew() bool {
	return r.ServerID == 0
}

// CertificateOverrideSet is the batch submitted in one request.
type CertificateOverrideSet struct {
	CertificateID int64
	Records       []OverrideRecord
}

// Len returns the number of records.
func (s *CertificateOverrideSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// TitledIntent is an intent whose selections are catalog titles, as read
// from a spreadsheet.
type TitledIntent struct {
	TagNumber              string
	Description            string
	TypeTitle              string
	MethodTitle            string
	AppliedStateTitle      string
	RemovedStateTitle      string
	Comment                string
	AdditionalValueApplied string
	AdditionalValueRemoved string
}

// ExistingOverride is a persisted override as listed by the SOC application.
type ExistingOverride struct {
	ServerID               int64
	TagNumber              string
	Description            string
	TypeTitle              string
	MethodTitle            string
	AppliedStateTitle      string
	RemovedStateTitle      string
	CurrentStateTitle      string
	Comment                string
	AdditionalValueApplied string
	AdditionalValueRemoved string
}
