// ==============================================================================
// ANCHOR CONVERSION WIZARD - internal/anchor/wizard.go
// ==============================================================================
// Four-step ARS -> USDC flow gated on KYC tiers:
//   1. KYC gate     base tier must be verified
//   2. Amount       amount, destination and inline sepa/aaa verification
//   3. Confirm      read-only summary
//   4. Result       transaction id, reset to start again
// ==============================================================================

package anchor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"sak/internal/kyc"
	"sak/internal/metrics"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Variant string

const (
	// VariantStandard plays a scripted gate and keeps an ARS balance.
	VariantStandard Variant = "standard"
	// VariantBankStyle asks for a base KYC form at step 1.
	VariantBankStyle Variant = "bank-style"
)

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantStandard, VariantBankStyle:
		return v, nil
	}
	return "", errors.ErrInvalidVariant
}

type Step int

const (
	StepKYCGate Step = iota + 1
	StepAmount
	StepConfirm
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepKYCGate:
		return "kyc_gate"
	case StepAmount:
		return "amount"
	case StepConfirm:
		return "confirm"
	case StepResult:
		return "result"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type Destination string

const (
	DestinationStandard Destination = "standard"
	DestinationEurope   Destination = "europe"
	DestinationAAA      Destination = "aaa"
)

func ParseDestination(s string) (Destination, error) {
	switch d := Destination(strings.ToLower(strings.TrimSpace(s))); d {
	case DestinationStandard, DestinationEurope, DestinationAAA:
		return d, nil
	}
	return "", errors.ErrInvalidDestination
}

// Tier is the KYC tier the destination requires.
func (d Destination) Tier() domain.KYCTier {
	switch d {
	case DestinationEurope:
		return domain.KYCTierSepa
	case DestinationAAA:
		return domain.KYCTierAAA
	}
	return domain.KYCTierBase
}

func (d Destination) Label(v Variant) string {
	switch d {
	case DestinationEurope:
		return "Send to Europe (SEPA)"
	case DestinationAAA:
		if v == VariantBankStyle {
			return "High Value Transfer - AAA"
		}
		return "Send to AAA (High Value Transfer)"
	}
	return "Standard Transfer"
}

// Blocking messages shown when the destination tier is not verified.
const (
	MsgSepaRequired          = "Please verify your SEPA KYC level first by providing your IBAN."
	MsgAAARequired           = "Please verify your AAA KYC level first by providing the required information."
	MsgSepaRequiredBankStyle = "Please verify your SEPA KYC level first."
	MsgAAARequiredBankStyle  = "Please verify your AAA KYC level first."
)

// AlertError carries the message the user must acknowledge before retrying.
type AlertError struct {
	Err     error
	Message string
}

func (e *AlertError) Error() string { return e.Message }
func (e *AlertError) Unwrap() error { return e.Err }

// File slots collected by the wizard.
const (
	SlotIDDocument  = "kycIdDocument"
	SlotSepaSelfie  = "sepaSelfie"
	SlotSepaAddress = "sepaProofOfAddress"
	SlotAAADocument = "aaaDocument"
	SlotAAAIncome   = "aaaIncome"
	SlotAAAAML      = "aaaAML"
)

// FileRef points at an uploaded document.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (f FileRef) location() string {
	if f.URL != "" {
		return f.URL
	}
	if f.Path != "" {
		return f.Path
	}
	return f.Name
}

// BaseKYCForm is the bank-style step-1 form.
type BaseKYCForm struct {
	FullName    string   `json:"fullname"`
	Email       string   `json:"email"`
	DateOfBirth string   `json:"dob"`
	Country     string   `json:"country"`
	IDNumber    string   `json:"idNumber"`
	IDDocument  *FileRef `json:"idDocument"`
}

func (f BaseKYCForm) missing() []string {
	var out []string
	for _, c := range []struct{ name, value string }{
		{"fullname", f.FullName},
		{"email", f.Email},
		{"dob", f.DateOfBirth},
		{"country", f.Country},
		{"idNumber", f.IDNumber},
	} {
		if strings.TrimSpace(c.value) == "" {
			out = append(out, c.name)
		}
	}
	if f.IDDocument == nil || f.IDDocument.Name == "" {
		out = append(out, SlotIDDocument)
	}
	return out
}

func (f BaseKYCForm) data() domain.KYCData {
	return domain.KYCData{
		domain.FieldFullName:      strings.TrimSpace(f.FullName),
		domain.FieldEmail:         strings.TrimSpace(f.Email),
		domain.FieldDateOfBirth:   f.DateOfBirth,
		domain.FieldCountry:       f.Country,
		domain.FieldDocumentIDURL: f.IDDocument.location(),
		"idNumber":                strings.TrimSpace(f.IDNumber),
	}
}

// InlineSubmission is the step-2 micro form for sepa (IBAN, selfie and proof
// of address) or aaa (document, proof of income and AML screening). An aaa
// submission may also carry the sepa fields.
type InlineSubmission struct {
	IBAN  string             `json:"iban,omitempty"`
	Files map[string]FileRef `json:"files,omitempty"`
}

var inlineSlots = map[domain.KYCTier][]string{
	domain.KYCTierSepa: {SlotSepaSelfie, SlotSepaAddress},
	domain.KYCTierAAA:  {SlotAAADocument, SlotAAAIncome, SlotAAAAML},
}

func (s InlineSubmission) missing(tier domain.KYCTier) []string {
	var out []string
	if tier == domain.KYCTierSepa && strings.TrimSpace(s.IBAN) == "" {
		out = append(out, "iban")
	}
	for _, slot := range inlineSlots[tier] {
		if f, ok := s.Files[slot]; !ok || f.Name == "" {
			out = append(out, slot)
		}
	}
	return out
}

func (s InlineSubmission) data(tier domain.KYCTier) domain.KYCData {
	out := sepaFields(s.IBAN, s.Files)
	if tier == domain.KYCTierSepa {
		return out
	}
	out[domain.FieldAdditionalDocumentURL] = s.Files[SlotAAADocument].location()
	out[domain.FieldProofOfFundsURL] = s.Files[SlotAAAIncome].location()
	out["amlScreeningDocumentUrl"] = s.Files[SlotAAAAML].location()
	return out
}

// sepaFields maps the sepa micro-form values that are present.
func sepaFields(iban string, files map[string]FileRef) domain.KYCData {
	out := domain.KYCData{}
	if iban = strings.TrimSpace(iban); iban != "" {
		out[domain.FieldIBAN] = iban
	}
	if f, ok := files[SlotSepaSelfie]; ok && f.Name != "" {
		out[domain.FieldSelfieURL] = f.location()
	}
	if f, ok := files[SlotSepaAddress]; ok && f.Name != "" {
		out[domain.FieldProofOfAddressURL] = f.location()
	}
	return out
}

// Options configures a wizard. Zero values fall back to the demo timings.
type Options struct {
	Wallet string
	// BaseVerifier settles step 1. Defaults to a 12s timer for the standard
	// variant and 4s for bank-style.
	BaseVerifier Verifier
	// InlineVerifier settles sepa and aaa at step 2. Defaults to a 4s timer.
	InlineVerifier      Verifier
	GateStages          []GateStage
	ReplayDuration      time.Duration
	VerificationTimeout time.Duration
	// Balance seeds the standard variant's ARS balance. Confirm debits it
	// and may take it below zero unless RejectOverdraft is set.
	Balance         decimal.Decimal
	RejectOverdraft bool
	// Pricing defaults to DefaultPricing when its rate is zero.
	Pricing Pricing
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Rand    *rand.Rand
}

// Wizard is one user's run through the conversion flow. It is safe for
// concurrent use; verifications run in the background and report back into
// the wizard when they settle.
type Wizard struct {
	variant Variant
	opts    Options
	logger  logger.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	step        Step
	verified    map[domain.KYCTier]bool
	verifying   map[domain.KYCTier]bool
	verifyErrs  map[domain.KYCTier]string
	gateRunning bool
	gatePassed  bool
	gateMessage string
	amount      decimal.Decimal
	destination Destination
	iban        string
	files       map[string]FileRef
	balance     decimal.Decimal
	result      *Summary
	rnd         *rand.Rand
}

func NewWizard(variant Variant, opts Options) *Wizard {
	if opts.BaseVerifier == nil {
		delay := DefaultGateDuration
		if variant == VariantBankStyle {
			delay = DefaultBaseFormDelay
		}
		opts.BaseVerifier = TimerVerifier{Delay: delay}
	}
	if opts.InlineVerifier == nil {
		opts.InlineVerifier = TimerVerifier{Delay: DefaultInlineDelay}
	}
	if opts.GateStages == nil {
		opts.GateStages = DefaultGateStages
	}
	if opts.ReplayDuration == 0 {
		opts.ReplayDuration = DefaultReplayDuration
	}
	if opts.Balance.IsZero() {
		opts.Balance = InitialBalance
	}
	if opts.Pricing.Rate.IsZero() {
		opts.Pricing = DefaultPricing()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NopMetrics()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Wizard{
		variant:     variant,
		opts:        opts,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		ctx:         ctx,
		cancel:      cancel,
		step:        StepKYCGate,
		verified:    map[domain.KYCTier]bool{},
		verifying:   map[domain.KYCTier]bool{},
		verifyErrs:  map[domain.KYCTier]string{},
		destination: DestinationStandard,
		files:       map[string]FileRef{},
		balance:     opts.Balance,
		rnd:         opts.Rand,
	}
}

func (w *Wizard) Variant() Variant { return w.variant }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Verified reports whether the tier has been verified in this run.
func (w *Wizard) Verified(tier domain.KYCTier) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verified[tier]
}

// ==============================================================================
// STEP 1 - KYC GATE
// ==============================================================================

// RunGate plays the standard variant's progress script while the base
// verifier runs, and returns once both are done. When base was verified in
// an earlier run only a short replay is played.
func (w *Wizard) RunGate(ctx context.Context, onProgress func(GateStage)) error {
	if w.variant != VariantStandard {
		return errors.ErrInvalidStep
	}

	w.mu.Lock()
	if w.step != StepKYCGate {
		w.mu.Unlock()
		return errors.ErrInvalidStep
	}
	if w.gateRunning {
		w.mu.Unlock()
		return errors.ErrVerificationInProgress
	}
	if w.gatePassed {
		w.mu.Unlock()
		return nil
	}
	w.gateRunning = true
	replay := w.verified[domain.KYCTierBase]
	w.mu.Unlock()

	progress := func(st GateStage) {
		w.mu.Lock()
		w.gateMessage = st.Message
		w.mu.Unlock()
		if onProgress != nil {
			onProgress(st)
		}
	}

	var err error
	if replay {
		if len(w.opts.GateStages) > 0 {
			progress(w.opts.GateStages[0])
		}
		err = sleep(ctx, w.opts.ReplayDuration)
	} else {
		err = w.runGate(ctx, progress)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.gateRunning = false
	if err != nil {
		w.verifyErrs[domain.KYCTierBase] = err.Error()
		w.logger.Warn("KYC gate failed", map[string]interface{}{
			"event":   "anchor_gate_failed",
			"variant": string(w.variant),
			"error":   err.Error(),
		})
		return err
	}
	delete(w.verifyErrs, domain.KYCTierBase)
	w.verified[domain.KYCTierBase] = true
	w.gatePassed = true
	return nil
}

// StartGate runs the gate in the background for the life of the wizard.
// Precondition failures are reported immediately; the outcome is visible
// through Snapshot.
func (w *Wizard) StartGate(onProgress func(GateStage)) error {
	if w.variant != VariantStandard {
		return errors.ErrInvalidStep
	}
	w.mu.Lock()
	switch {
	case w.step != StepKYCGate:
		w.mu.Unlock()
		return errors.ErrInvalidStep
	case w.gateRunning:
		w.mu.Unlock()
		return errors.ErrVerificationInProgress
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.RunGate(w.ctx, onProgress)
	}()
	return nil
}

func (w *Wizard) runGate(ctx context.Context, progress func(GateStage)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return playStages(gctx, w.opts.GateStages, progress)
	})
	g.Go(func() error {
		start := time.Now()
		outcome, err := w.opts.BaseVerifier.Verify(gctx, VerificationRequest{
			Wallet: w.opts.Wallet,
			Tier:   domain.KYCTierBase,
		})
		w.observe(domain.KYCTierBase, outcome, err, start)
		if err != nil {
			return err
		}
		if outcome != OutcomeValidated {
			return errors.ErrVerificationRejected
		}
		return nil
	})
	return g.Wait()
}

// SubmitBaseKYC starts the bank-style base verification. It returns as soon
// as the form is accepted; Snapshot reports progress.
func (w *Wizard) SubmitBaseKYC(form BaseKYCForm) error {
	if w.variant != VariantBankStyle {
		return errors.ErrInvalidStep
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepKYCGate {
		return errors.ErrInvalidStep
	}
	if w.verified[domain.KYCTierBase] {
		return nil
	}
	if w.verifying[domain.KYCTierBase] {
		return errors.ErrVerificationInProgress
	}
	if missing := form.missing(); len(missing) > 0 {
		return errors.Wrap(errors.ErrIncompleteSubmission, "missing "+strings.Join(missing, ", "))
	}

	w.files[SlotIDDocument] = *form.IDDocument
	w.startVerification(domain.KYCTierBase, w.opts.BaseVerifier, form.data())
	return nil
}

// Proceed moves from the gate to the amount step.
func (w *Wizard) Proceed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepKYCGate {
		return errors.ErrInvalidStep
	}
	if !w.gatePassed {
		return errors.ErrBaseNotVerified
	}
	w.setStep(StepAmount)
	return nil
}

// ==============================================================================
// STEP 2 - AMOUNT & DESTINATION
// ==============================================================================

func (w *Wizard) SetAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.ErrNegativeAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepAmount {
		return errors.ErrInvalidStep
	}
	w.amount = amount
	return nil
}

func (w *Wizard) SelectDestination(d Destination) error {
	if _, err := ParseDestination(string(d)); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepAmount {
		return errors.ErrInvalidStep
	}
	w.destination = d
	return nil
}

// Quote prices the current amount.
func (w *Wizard) Quote() Quote {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts.Pricing.Quote(w.amount)
}

// VerifyInline starts the sepa or aaa verification from the step-2 micro
// form. The result is applied to the tier given here, whatever destination
// is selected by the time it settles.
func (w *Wizard) VerifyInline(tier domain.KYCTier, sub InlineSubmission) error {
	if tier != domain.KYCTierSepa && tier != domain.KYCTierAAA {
		return errors.ErrInvalidTier
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepAmount {
		return errors.ErrInvalidStep
	}
	if w.verified[tier] {
		return nil
	}
	if w.verifying[tier] {
		return errors.ErrVerificationInProgress
	}
	if missing := sub.missing(tier); len(missing) > 0 {
		return errors.Wrap(errors.ErrIncompleteSubmission, "missing "+strings.Join(missing, ", "))
	}

	data := sub.data(tier)
	if tier == domain.KYCTierSepa {
		w.iban = strings.TrimSpace(sub.IBAN)
	} else {
		// sepa values collected earlier in this run back the aaa document
		data = kyc.MergeData(sepaFields(w.iban, w.files), data)
	}
	for _, slot := range inlineSlots[tier] {
		w.files[slot] = sub.Files[slot]
	}
	w.startVerification(tier, w.opts.InlineVerifier, data)
	return nil
}

// Continue moves to the confirmation step once the amount is positive and
// the destination's tier is verified.
func (w *Wizard) Continue() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepAmount {
		return errors.ErrInvalidStep
	}
	if !w.amount.IsPositive() {
		return errors.ErrAmountRequired
	}
	if tier := w.destination.Tier(); !w.verified[tier] {
		return &AlertError{Err: errors.ErrDestinationNotVerified, Message: w.alertFor(tier)}
	}
	w.setStep(StepConfirm)
	return nil
}

func (w *Wizard) alertFor(tier domain.KYCTier) string {
	bank := w.variant == VariantBankStyle
	switch {
	case tier == domain.KYCTierSepa && bank:
		return MsgSepaRequiredBankStyle
	case tier == domain.KYCTierSepa:
		return MsgSepaRequired
	case bank:
		return MsgAAARequiredBankStyle
	}
	return MsgAAARequired
}

// Back returns to the previous step. The gate and the result are terminal
// in this direction.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepAmount:
		w.setStep(StepKYCGate)
	case StepConfirm:
		w.setStep(StepAmount)
	default:
		return errors.ErrInvalidStep
	}
	return nil
}

// ==============================================================================
// STEP 3 & 4 - CONFIRM AND RESULT
// ==============================================================================

// Summary is the read-only view of a conversion.
type Summary struct {
	Destination      Destination `json:"destination"`
	DestinationLabel string      `json:"destinationLabel"`
	Amount           string      `json:"amount"`
	Commission       string      `json:"commission"`
	Received         string      `json:"received"`
	Total            string      `json:"total"`
	TransactionID    string      `json:"transactionId,omitempty"`
	Balance          string      `json:"balance,omitempty"`
}

func (w *Wizard) Summary() (*Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepConfirm:
		return w.summary(), nil
	case StepResult:
		out := *w.result
		return &out, nil
	}
	return nil, errors.ErrInvalidStep
}

func (w *Wizard) summary() *Summary {
	q := w.opts.Pricing.Quote(w.amount)
	s := &Summary{
		Destination:      w.destination,
		DestinationLabel: w.destination.Label(w.variant),
		Amount:           FormatAmount(q.Amount, 2),
		Commission:       FormatAmount(q.Commission, 2),
		Received:         FormatAmount(q.Received, 4),
		Total:            FormatAmount(q.Total(), 2),
	}
	if w.variant == VariantStandard {
		s.Balance = FormatAmount(w.balance, 2)
	}
	return s
}

// Confirm books the conversion. The standard variant debits amount plus
// commission from its balance.
func (w *Wizard) Confirm() (*Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepConfirm {
		return nil, errors.ErrInvalidStep
	}

	if w.variant == VariantStandard {
		total := w.opts.Pricing.Quote(w.amount).Total()
		if w.opts.RejectOverdraft && total.GreaterThan(w.balance) {
			return nil, errors.ErrInsufficientBalance
		}
		w.balance = w.balance.Sub(total)
	}

	s := w.summary()
	s.TransactionID = w.transactionID()
	w.result = s
	w.setStep(StepResult)

	w.metrics.Conversions.With("variant", string(w.variant)).Add(1)
	w.logger.Info("Conversion confirmed", map[string]interface{}{
		"event":          "anchor_conversion_confirmed",
		"variant":        string(w.variant),
		"destination":    string(w.destination),
		"amount":         w.amount.String(),
		"transaction_id": s.TransactionID,
	})

	out := *s
	return &out, nil
}

const hexDigits = "0123456789abcdef"

// transactionID is a display id only; it is not meant to be unguessable.
func (w *Wizard) transactionID() string {
	b := make([]byte, 2, 66)
	b[0], b[1] = '0', 'x'
	for i := 0; i < 64; i++ {
		b = append(b, hexDigits[w.rnd.Intn(16)])
	}
	return string(b)
}

// Reset starts a new conversion. Verified tiers are kept: bank-style goes
// straight past the gate when base is verified, standard replays a short
// gate.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepResult {
		return errors.ErrInvalidStep
	}
	w.amount = decimal.Zero
	w.destination = DestinationStandard
	w.iban = ""
	w.files = map[string]FileRef{}
	w.result = nil
	w.verifyErrs = map[domain.KYCTier]string{}
	w.gateMessage = ""
	w.gatePassed = w.variant == VariantBankStyle && w.verified[domain.KYCTierBase]
	w.setStep(StepKYCGate)
	return nil
}

// ==============================================================================
// SNAPSHOT
// ==============================================================================

// Snapshot is the full wizard state as served to clients.
type Snapshot struct {
	Variant            Variant                   `json:"variant"`
	Step               Step                      `json:"step"`
	StepName           string                    `json:"stepName"`
	Wallet             string                    `json:"wallet,omitempty"`
	KYC                map[domain.KYCTier]bool   `json:"kyc"`
	Verifying          map[domain.KYCTier]bool   `json:"verifying"`
	VerificationErrors map[domain.KYCTier]string `json:"verificationErrors,omitempty"`
	GateRunning        bool                      `json:"gateRunning"`
	GatePassed         bool                      `json:"gatePassed"`
	GateMessage        string                    `json:"gateMessage,omitempty"`
	Amount             string                    `json:"amount"`
	Destination        Destination               `json:"destination"`
	DestinationLabel   string                    `json:"destinationLabel"`
	Quote              QuoteView                 `json:"quote"`
	IBAN               string                    `json:"iban,omitempty"`
	Balance            string                    `json:"balance,omitempty"`
	Files              map[string]FileRef        `json:"files,omitempty"`
	Result             *Summary                  `json:"result,omitempty"`
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		Variant:          w.variant,
		Step:             w.step,
		StepName:         w.step.String(),
		Wallet:           w.opts.Wallet,
		KYC:              map[domain.KYCTier]bool{},
		Verifying:        map[domain.KYCTier]bool{},
		GateRunning:      w.gateRunning,
		GatePassed:       w.gatePassed,
		GateMessage:      w.gateMessage,
		Amount:           FormatAmount(w.amount, 2),
		Destination:      w.destination,
		DestinationLabel: w.destination.Label(w.variant),
		Quote:            w.opts.Pricing.Quote(w.amount).View(),
		IBAN:             w.iban,
	}
	for _, t := range domain.AllTiers {
		s.KYC[t] = w.verified[t]
		s.Verifying[t] = w.verifying[t]
	}
	if len(w.verifyErrs) > 0 {
		s.VerificationErrors = make(map[domain.KYCTier]string, len(w.verifyErrs))
		for t, e := range w.verifyErrs {
			s.VerificationErrors[t] = e
		}
	}
	if len(w.files) > 0 {
		s.Files = make(map[string]FileRef, len(w.files))
		for k, f := range w.files {
			s.Files[k] = f
		}
	}
	if w.variant == VariantStandard {
		s.Balance = FormatAmount(w.balance, 2)
	}
	if w.result != nil {
		r := *w.result
		s.Result = &r
	}
	return s
}

// Wait blocks until background verifications have settled.
func (w *Wizard) Wait() {
	w.wg.Wait()
}

// Close cancels background verifications and waits for them.
func (w *Wizard) Close() {
	w.cancel()
	w.wg.Wait()
}

// ==============================================================================
// HELPERS
// ==============================================================================

// startVerification must be called with w.mu held.
func (w *Wizard) startVerification(tier domain.KYCTier, v Verifier, data domain.KYCData) {
	w.verifying[tier] = true
	delete(w.verifyErrs, tier)
	req := VerificationRequest{Wallet: w.opts.Wallet, Tier: tier, Data: data}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx := w.ctx
		if w.opts.VerificationTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.opts.VerificationTimeout)
			defer cancel()
		}

		start := time.Now()
		outcome, err := v.Verify(ctx, req)
		w.observe(tier, outcome, err, start)

		w.mu.Lock()
		defer w.mu.Unlock()
		w.verifying[tier] = false
		switch {
		case err != nil:
			w.verifyErrs[tier] = err.Error()
		case outcome != OutcomeValidated:
			w.verifyErrs[tier] = errors.ErrVerificationRejected.Error()
		default:
			w.verified[tier] = true
			if tier == domain.KYCTierBase {
				w.gatePassed = true
			}
		}
	}()
}

func (w *Wizard) observe(tier domain.KYCTier, outcome VerificationOutcome, err error, start time.Time) {
	label := string(outcome)
	switch {
	case errors.Is(err, errors.ErrVerificationTimeout):
		label = "timeout"
	case err != nil:
		label = "error"
	}
	w.metrics.VerificationSeconds.With("tier", string(tier), "outcome", label).Observe(time.Since(start).Seconds())

	fields := map[string]interface{}{
		"event":   "anchor_verification_settled",
		"variant": string(w.variant),
		"tier":    string(tier),
		"outcome": label,
	}
	if err != nil {
		fields["error"] = err.Error()
		w.logger.Warn("Verification failed", fields)
		return
	}
	w.logger.Info("Verification settled", fields)
}

// setStep must be called with w.mu held.
func (w *Wizard) setStep(s Step) {
	w.step = s
	w.metrics.WizardSteps.With("variant", string(w.variant), "step", s.String()).Add(1)
}
