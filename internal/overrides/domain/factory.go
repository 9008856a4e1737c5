package overrides

import (
	"errors"
	"fmt"
)

// RecordFactory turns intents into complete records.
type RecordFactory struct {
	// CurrentStateID overrides NotAppliedStateID when non-zero.
	CurrentStateID int64
	// Titles resolves display labels. Optional.
	Titles func(typeID, methodID int64) (typeTitle, methodTitle string)
}

// NewRecordFactory constructs a factory using the default sentinel.
func NewRecordFactory() RecordFactory {
	return RecordFactory{CurrentStateID: NotAppliedStateID}
}

func (f RecordFactory) currentState() int64 {
	if f.CurrentStateID != 0 {
		return f.CurrentStateID
	}
	return NotAppliedStateID
}

// MissingFields lists the absent required fields of an intent.
func MissingFields(in Intent) []string {
	var missing []string
	if in.TagNumber == "" {
		missing = append(missing, "tagNumber")
	}
	if in.Description == "" {
		missing = append(missing, "description")
	}
	if in.TypeID == 0 {
		missing = append(missing, "typeId")
	}
	if in.MethodID == 0 {
		missing = append(missing, "methodId")
	}
	if in.AppliedStateID == 0 {
		missing = append(missing, "appliedStateId")
	}
	if in.RemovedStateID == 0 {
		missing = append(missing, "removedStateId")
	}
	return missing
}

// BuildRecord completes a single intent. OrderIndex and CertificateID are
// left for the caller; use Build for batches.
func (f RecordFactory) BuildRecord(in Intent) (OverrideRecord, error) {
	if missing := MissingFields(in); len(missing) > 0 {
		return OverrideRecord{}, &MissingRequiredFieldError{Fields: missing}
	}
	rec := OverrideRecord{
		TagNumber:              in.TagNumber,
		Description:            in.Description,
		TypeID:                 in.TypeID,
		MethodID:               in.MethodID,
		AppliedStateID:         in.AppliedStateID,
		RemovedStateID:         in.RemovedStateID,
		Comment:                in.Comment,
		AdditionalValueApplied: in.AdditionalValueApplied,
		AdditionalValueRemoved: in.AdditionalValueRemoved,
		CurrentStateID:         f.currentState(),
		ServerID:               in.ServerID,
	}
	if f.Titles != nil {
		rec.Label = Label(f.Titles(in.TypeID, in.MethodID))
	}
	return rec, nil
}

// Build completes every intent and stamps order and certificate.
// All missing-field errors are joined so the caller sees every problem.
func (f RecordFactory) Build(certificateID int64, intents []Intent) (*CertificateOverrideSet, error) {
	if certificateID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCertificateID, certificateID)
	}
	if len(intents) == 0 {
		return nil, ErrEmptySet
	}
	set := &CertificateOverrideSet{
		CertificateID: certificateID,
		Records:       make([]OverrideRecord, 0, len(intents)),
	}
	var errs []error
	for i, in := range intents {
		rec, err := f.BuildRecord(in)
		if err != nil {
			var missing *MissingRequiredFieldError
			if errors.As(err, &missing) {
				missing.Position = i + 1
			}
			errs = append(errs, err)
			continue
		}
		rec.OrderIndex = i + 1
		rec.CertificateID = certificateID
		set.Records = append(set.Records, rec)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}
