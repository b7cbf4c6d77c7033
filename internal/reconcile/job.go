package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"dirsync/internal/api"
	"dirsync/internal/directory"
	"dirsync/internal/ledger"
	"dirsync/internal/settings"
	"dirsync/pkg/logging"
)

// Progress checkpoints. The sync phases interpolate linearly between
// their bounds; the later phases advance through the same checkpoints
// in every mode so pollers see identical progress for apply and
// dry-run twins.
const (
	pctValidated     = 5
	pctSettingsSaved = 10
	pctConnected     = 15
	pctSyncStart     = 20
	pctMembersDone   = 35
	pctUsersDone     = 60
	pctGroupsDone    = 75
	pctSyncEnd       = 80
	pctAvatarsStart  = 85
	pctAvatarsEnd    = 90
	pctRights        = 95
	pctDisconnect    = 99
)

// ConnectFunc opens a directory source for one run. A failed dial is
// reported as a classified ConnectResult, never as a Go error, so the
// job maps it straight onto user-facing codes. Tests substitute fakes.
type ConnectFunc func(ctx context.Context, cfg *settings.Settings, confirmedCert string) (api.DirectorySource, api.ConnectResult)

// LDAPConnect is the production ConnectFunc.
func LDAPConnect(ctx context.Context, cfg *settings.Settings, confirmedCert string) (api.DirectorySource, api.ConnectResult) {
	client, err := directory.Open(ctx, cfg, confirmedCert)
	if err != nil {
		return nil, directory.ClassifyError(cfg, err)
	}
	return client, api.ConnectResult{Status: api.ConnectOK}
}

// Params collects everything a job needs at construction time.
type Params struct {
	ID     string
	Tenant api.Tenant
	Kind   api.OperationKind

	// Settings is the configuration the run executes with. nil means
	// settings could not be loaded; the run fails immediately.
	Settings *settings.Settings

	// ActorID is the local user id of the user who triggered the run.
	// Self-protection checks key off it; empty for scheduled runs.
	ActorID string

	// ConfirmedCert is the certificate token echoed back after the
	// caller accepted an untrusted server certificate.
	ConfirmedCert string

	Messages Messages
	Store    api.LocalStore
	Persist  *settings.Store

	// Connect defaults to LDAPConnect when nil.
	Connect ConnectFunc
}

// Job is one reconciliation run. Construct with NewJob, drive with Run
// (exactly once), poll with Snapshot. All status accessors are safe to
// call concurrently with Run.
type Job struct {
	id            string
	tenant        api.Tenant
	kind          api.OperationKind
	cfg           *settings.Settings
	actorID       string
	confirmedCert string
	msgs          Messages

	store   api.LocalStore
	persist *settings.Store
	connect ConnectFunc

	led *ledger.Ledger
	app applier

	// per-run working state, touched only by Run's goroutine
	ownerID string
	synced  map[string]api.LocalUser
	seen    []api.DirectoryUser

	mu       sync.Mutex
	status   api.JobStatus
	warnings []string
}

// NewJob builds a run in its initial state.
func NewJob(p Params) *Job {
	j := &Job{
		id:            p.ID,
		tenant:        p.Tenant,
		kind:          p.Kind,
		cfg:           p.Settings,
		actorID:       p.ActorID,
		confirmedCert: p.ConfirmedCert,
		msgs:          p.Messages,
		store:         p.Store,
		persist:       p.Persist,
		connect:       p.Connect,
		led:           ledger.New(),
		synced:        make(map[string]api.LocalUser),
		status: api.JobStatus{
			ID:            p.ID,
			TenantID:      p.Tenant.ID,
			OperationKind: p.Kind,
		},
	}
	if j.connect == nil {
		j.connect = LDAPConnect
	}
	if j.kind.DryRun() {
		j.app = &recorder{led: j.led}
	} else {
		j.app = &mutator{store: p.Store, tenantID: p.Tenant.ID}
	}
	return j
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// TenantID returns the tenant the job belongs to.
func (j *Job) TenantID() string { return j.tenant.ID }

// Kind returns the operation kind the job was submitted with.
func (j *Job) Kind() api.OperationKind { return j.kind }

// Ledger exposes the accumulated change records of a dry-run.
func (j *Job) Ledger() *ledger.Ledger { return j.led }

// Snapshot returns a copy of the current job status. The warning field
// is included but not cleared; use ConsumeWarning for read-once
// delivery.
func (j *Job) Snapshot() api.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.status
	s.Warning = joinWarnings(j.warnings)
	return s
}

// ConsumeWarning returns the accumulated warnings and clears them, so a
// poller surfaces each warning exactly once.
func (j *Job) ConsumeWarning() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	w := joinWarnings(j.warnings)
	j.warnings = nil
	return w
}

// Run executes the state machine to completion. It never returns an
// error: every outcome, including a panic, lands in the final status.
func (j *Job) Run(ctx context.Context) {
	defer j.finish(ctx)

	// store writes of a run are attributed to the engine, not the
	// user who triggered it
	ctx = api.WithPrincipal(ctx, api.SystemPrincipal)

	logging.Info("Reconcile", "Job %s (%s) starting for tenant %s", j.id, j.kind, j.tenant.ID)

	if j.cfg == nil {
		j.failCode(api.CodeCantGetSettings, nil)
		return
	}

	j.setProgress(pctValidated, j.msgs.PrepareSettings)
	if err := j.cfg.Validate(); err != nil {
		j.failErr(err)
		return
	}
	if j.canceled(ctx) {
		return
	}

	if j.resolveOwner(ctx); j.canceled(ctx) {
		return
	}

	if !j.cfg.Enabled {
		j.runTurnOff(ctx)
		return
	}

	if j.kind.Save() {
		if j.kind.Apply() {
			if err := j.persist.SaveSettings(j.tenant.ID, j.cfg); err != nil {
				j.failCode(api.CodeSaveSettings, err)
				return
			}
		}
		j.setProgress(pctSettingsSaved, j.msgs.PrepareSettings)
	}

	src, res := j.connect(ctx, j.cfg, j.confirmedCert)
	if res.Status != api.ConnectOK {
		j.connectFailed(res)
		return
	}
	defer src.Close()

	if j.cfg.Authentication {
		j.setProgress(pctConnected, j.msgs.CheckConnection)
		if res := src.Bind(ctx, j.cfg.Login, j.cfg.Password); res.Status != api.ConnectOK {
			j.connectFailed(res)
			return
		}
	}
	if j.canceled(ctx) {
		return
	}

	var err error
	if j.cfg.GroupMembership {
		err = j.syncGroupScoped(ctx, src)
	} else {
		err = j.syncFlat(ctx, src)
	}
	if err != nil {
		j.failErr(err)
		return
	}
	j.setProgress(pctSyncEnd, "")
	if j.canceled(ctx) {
		return
	}

	if err := j.syncAvatars(ctx); err != nil {
		j.failErr(err)
		return
	}
	if j.canceled(ctx) {
		return
	}

	if err := j.syncAccessRights(ctx, src); err != nil {
		j.failErr(err)
		return
	}

	j.setProgress(pctDisconnect, j.msgs.Disconnecting)
}

// resolveOwner caches the tenant owner id for the protection checks.
func (j *Job) resolveOwner(ctx context.Context) {
	owner, err := j.store.TenantOwner(ctx, j.tenant.ID)
	if err != nil || owner == "" {
		owner = j.tenant.OwnerID
	}
	j.ownerID = owner
}

// finish drives the job into its single terminal state. A panic in any
// phase is converted to an internal error instead of killing the
// worker.
func (j *Job) finish(ctx context.Context) {
	if r := recover(); r != nil {
		logging.Error("Reconcile", fmt.Errorf("%v", r), "Job %s panicked", j.id)
		j.failCode(api.CodeInternal, nil)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Finished {
		return
	}
	j.status.Finished = true
	j.status.Percentage = 100
	j.status.SourceDetail = ""

	switch {
	case ctx.Err() != nil && j.status.Error == "":
		j.status.StatusMessage = j.msgs.Canceled
	case j.status.Error != "" || j.status.CertificateConfirmation != "":
		// message already set by failCode / connectFailed
	case j.kind.DryRun():
		report, err := j.led.Report()
		if err != nil {
			logging.Error("Reconcile", err, "Job %s could not render its change report", j.id)
			j.status.Error = j.msgs.ErrorText(api.CodeInternal)
			return
		}
		j.status.StatusMessage = report
	default:
		j.status.StatusMessage = j.msgs.Completed
	}
	logging.Info("Reconcile", "Job %s finished (error=%q)", j.id, j.status.Error)
}

func (j *Job) setProgress(pct int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if pct > 100 {
		pct = 100
	}
	if pct > j.status.Percentage {
		j.status.Percentage = pct
	}
	if msg != "" {
		j.status.StatusMessage = msg
	}
}

func (j *Job) setSource(detail string) {
	j.mu.Lock()
	j.status.SourceDetail = detail
	j.mu.Unlock()
}

func (j *Job) warn(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !slices.Contains(j.warnings, msg) {
		j.warnings = append(j.warnings, msg)
	}
}

func (j *Job) failCode(code api.ErrorCode, cause error) {
	logging.Error("Reconcile", cause, "Job %s failed with code %s", j.id, code)
	j.mu.Lock()
	j.status.Error = j.msgs.ErrorText(code)
	j.mu.Unlock()
}

// failErr classifies an error bubbling out of a phase. Cancellation is
// not a failure; finish renders it as such.
func (j *Job) failErr(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	j.failCode(api.CodeOf(err), err)
}

// connectFailed handles a classified connectivity failure. An untrusted
// certificate is not an error: the run ends carrying the confirmation
// token so the caller can accept the certificate and resubmit.
func (j *Job) connectFailed(res api.ConnectResult) {
	if res.Status == api.ConnectCertificateRequested && res.CertificateToken != "" {
		logging.Info("Reconcile", "Job %s requests certificate confirmation (%s)", j.id, res.CertificateToken)
		j.mu.Lock()
		j.status.CertificateConfirmation = res.CertificateToken
		j.status.StatusMessage = j.msgs.CertificateAsk
		j.mu.Unlock()
		return
	}
	logging.Warn("Reconcile", "Job %s connectivity check failed: %s", j.id, res.Detail)
	j.failCode(connectCode(res.Status), nil)
}

// canceled checks the context at a phase boundary and records the
// cancellation when it fired.
func (j *Job) canceled(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	logging.Info("Reconcile", "Job %s canceled", j.id)
	return true
}

// mapDirectoryError turns a search failure into a classified error,
// passing cancellation through untouched.
func (j *Job) mapDirectoryError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	res := directory.ClassifyError(j.cfg, err)
	return api.WrapReconcileError(connectCode(res.Status), err, "directory search failed")
}

// abortsRun separates per-entity failures, which are logged and
// skipped, from the classes that must end the run.
func abortsRun(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch api.CodeOf(err) {
	case api.CodeQuotaExceeded, api.CodeFormat:
		return true
	}
	return false
}

func connectCode(status api.ConnectStatus) api.ErrorCode {
	switch status {
	case api.ConnectWrongCredentials:
		return api.CodeWrongCredentials
	case api.ConnectBadSearchBase:
		return api.CodeBadSearchBase
	case api.ConnectInvalidFilter:
		return api.CodeInvalidFilter
	case api.ConnectStrongAuthRequired:
		return api.CodeStrongAuthRequired
	case api.ConnectDomainNotFound:
		return api.CodeDomainNotFound
	case api.ConnectCertificateRequested:
		return api.CodeCertificateRequest
	default:
		return api.CodeConnect
	}
}

func joinWarnings(warnings []string) string {
	return strings.Join(warnings, "\n")
}
