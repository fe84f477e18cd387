package kyc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sak/pkg/domain"
	"sak/pkg/errors"
)

// Submitter is the part of the record store a wizard needs.
type Submitter interface {
	CreateKycRecord(ctx context.Context, tier domain.KYCTier, data domain.KYCData) (*domain.KYCRecord, error)
	UploadFile(ctx context.Context, tier domain.KYCTier, fileName, contentType string, data []byte) (*UploadResult, error)
	DeleteFile(ctx context.Context, path string) error
}

type WizardState string

const (
	WizardEditing    WizardState = "editing"
	WizardSubmitting WizardState = "submitting"
	WizardSuccess    WizardState = "success"
)

type FileState string

const (
	FileIdle      FileState = "idle"
	FileUploading FileState = "uploading"
	FileAttached  FileState = "attached"
	FileError     FileState = "error"
)

// FileField tracks one upload slot of the form.
type FileField struct {
	State FileState `json:"state"`
	Path  string    `json:"path,omitempty"`
	URL   string    `json:"url,omitempty"`
	Error string    `json:"error,omitempty"`
}

const (
	FieldSubmit = "submit"

	MsgSubmitFailed = "Failed to submit KYC. Please try again."
)

var fileFieldKinds = map[string][]FileKind{
	domain.FieldDocumentIDURL:         {FileKindImage, FileKindPDF},
	domain.FieldSelfieURL:             {FileKindImage, FileKindVideo},
	domain.FieldProofOfAddressURL:     {FileKindImage, FileKindPDF},
	domain.FieldAdditionalDocumentURL: {FileKindImage, FileKindPDF},
	domain.FieldProofOfFundsURL:       {FileKindImage, FileKindPDF},
}

// Wizard drives the form for a single tier: editing, uploads, submission.
type Wizard struct {
	tier  domain.KYCTier
	store Submitter
	now   func() time.Time

	mu     sync.Mutex
	state  WizardState
	data   domain.KYCData
	errs   FieldErrors
	files  map[string]*FileField
	record *domain.KYCRecord
}

func NewWizard(tier domain.KYCTier, store Submitter) *Wizard {
	return &Wizard{
		tier:  tier,
		store: store,
		now:   time.Now,
		state: WizardEditing,
		data:  domain.KYCData{},
		errs:  FieldErrors{},
		files: map[string]*FileField{},
	}
}

// Prefill seeds the form, typically with a previous submission's data.
func (w *Wizard) Prefill(data domain.KYCData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = MergeData(w.data, data)
}

func (w *Wizard) Tier() domain.KYCTier { return w.tier }

func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Wizard) Data() domain.KYCData {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data.Clone()
}

func (w *Wizard) Errors() FieldErrors {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := FieldErrors{}
	for k, v := range w.errs {
		out[k] = v
	}
	return out
}

func (w *Wizard) Record() *domain.KYCRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyRecord(w.record)
}

// SetField edits a value and clears that field's error.
func (w *Wizard) SetField(name string, value interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data[name] = value
	delete(w.errs, name)
}

func (w *Wizard) File(field string) FileField {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.files[field]; ok {
		return *f
	}
	return FileField{State: FileIdle}
}

// AttachFile uploads a document into the given file field. Uploads may run
// while a submission is in flight; the submission uses whatever was attached
// when it started.
func (w *Wizard) AttachFile(ctx context.Context, field, fileName, contentType string, content []byte) (*UploadResult, error) {
	kinds, ok := fileFieldKinds[field]
	if !ok {
		return nil, fmt.Errorf("%s is not a file field", field)
	}

	if msg := ValidateFile(fileName, int64(len(content)), AllowedExtensions(kinds...), DefaultMaxFileSizeMB); msg != "" {
		w.setFile(field, &FileField{State: FileError, Error: msg})
		return nil, &FileRejection{Message: msg}
	}

	w.setFile(field, &FileField{State: FileUploading})

	res, err := w.store.UploadFile(ctx, w.tier, fileName, contentType, content)
	if err != nil {
		w.setFile(field, &FileField{State: FileError, Error: "Failed to upload file"})
		return nil, err
	}

	w.mu.Lock()
	w.files[field] = &FileField{State: FileAttached, Path: res.Path, URL: res.URL}
	w.data[field] = res.URL
	delete(w.errs, field)
	w.mu.Unlock()
	return res, nil
}

// DetachFile removes an attached document from storage and clears the field.
func (w *Wizard) DetachFile(ctx context.Context, field string) error {
	w.mu.Lock()
	f, ok := w.files[field]
	if !ok || f.State != FileAttached {
		w.mu.Unlock()
		return nil
	}
	path := f.Path
	w.mu.Unlock()

	if err := w.store.DeleteFile(ctx, path); err != nil {
		return err
	}

	w.mu.Lock()
	w.files[field] = &FileField{State: FileIdle}
	delete(w.data, field)
	w.mu.Unlock()
	return nil
}

func (w *Wizard) setFile(field string, f *FileField) {
	w.mu.Lock()
	w.files[field] = f
	w.mu.Unlock()
}

// Submit validates the form and, when clean, creates the record. On failure
// the wizard returns to editing with a "submit" error and keeps the data.
func (w *Wizard) Submit(ctx context.Context) (*domain.KYCRecord, error) {
	w.mu.Lock()
	if w.state != WizardEditing {
		w.mu.Unlock()
		return nil, errors.ErrInvalidStep
	}
	fields := ValidateAt(w.tier, w.data, w.now())
	if len(fields) > 0 {
		w.errs = fields
		w.mu.Unlock()
		return nil, &ValidationError{Fields: fields}
	}
	w.state = WizardSubmitting
	w.errs = FieldErrors{}
	snapshot := w.data.Clone()
	w.mu.Unlock()

	rec, err := w.store.CreateKycRecord(ctx, w.tier, snapshot)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = WizardEditing
		msg := MsgSubmitFailed
		if errors.Is(err, errors.ErrAlreadyValidated) {
			msg = errors.ErrAlreadyValidated.Error()
		}
		w.errs[FieldSubmit] = msg
		return nil, err
	}
	w.state = WizardSuccess
	w.record = rec
	return copyRecord(rec), nil
}

// NextView is where the user goes after a successful submission.
func (w *Wizard) NextView() string {
	if w.tier == domain.KYCTierBase {
		return "dashboard"
	}
	return "success?type=" + string(w.tier)
}

// AMLScreener runs an AML screening over the form data.
type AMLScreener interface {
	Screen(ctx context.Context, data domain.KYCData) (domain.AMLScreeningResult, error)
}

// RunAMLScreening records the screening result and date on the form.
func (w *Wizard) RunAMLScreening(ctx context.Context, screener AMLScreener) (domain.AMLScreeningResult, error) {
	result, err := screener.Screen(ctx, w.Data())
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.data[domain.FieldAMLScreeningResult] = string(result)
	w.data[domain.FieldAMLScreeningDate] = w.now().UTC().Format(time.RFC3339)
	delete(w.errs, domain.FieldAMLScreeningResult)
	w.mu.Unlock()
	return result, nil
}

// SimulatedScreener returns Result after Delay. It performs no real screening.
type SimulatedScreener struct {
	Delay  time.Duration
	Result domain.AMLScreeningResult
}

func (s SimulatedScreener) Screen(ctx context.Context, _ domain.KYCData) (domain.AMLScreeningResult, error) {
	result := s.Result
	if result == "" {
		result = domain.AMLResultOK
	}
	if s.Delay <= 0 {
		return result, nil
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
		return result, nil
	}
}
