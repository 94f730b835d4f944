package cases

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/activity"
	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/events"
	"github.com/aldoetobex/legal-aid-backend/internal/lifecycle"
	"github.com/aldoetobex/legal-aid-backend/internal/numbering"
	"github.com/aldoetobex/legal-aid-backend/internal/observability"
	"github.com/aldoetobex/legal-aid-backend/internal/policy"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/sanitize"
	"github.com/aldoetobex/legal-aid-backend/pkg/utils"
)

const (
	maxDescription = 5000
	previewLength  = 240
)

// ErrCaseNumberTaken signals a unique-constraint hit on case_number.
var ErrCaseNumberTaken = apperr.Conflict("case number already taken")

// Deps are the collaborators of Service. Zero values get defaults in NewService.
type Deps struct {
	Numbers     numbering.Generator
	Transitions lifecycle.Machine
	Recorder    *activity.Recorder
	Events      events.Publisher
	Metrics     *observability.Metrics
	Log         *slog.Logger
	Now         func() time.Time
	ResponseSLA time.Duration
	MaxAttempts int
}

// Service runs every case operation. Each mutating method performs its
// authorization check, state change and timeline entry in one transaction.
type Service struct {
	db          *gorm.DB
	access      policy.Evaluator
	numbers     numbering.Generator
	transitions lifecycle.Machine
	recorder    *activity.Recorder
	events      events.Publisher
	metrics     *observability.Metrics
	log         *slog.Logger
	now         func() time.Time
	sla         time.Duration
	maxAttempts int
}

func NewService(db *gorm.DB, d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Numbers.Prefix == "" {
		d.Numbers = numbering.NewGenerator("SLLS")
	}
	if d.Recorder == nil {
		d.Recorder = activity.NewRecorder(d.Now)
	}
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.ResponseSLA <= 0 {
		d.ResponseSLA = 48 * time.Hour
	}
	if d.MaxAttempts < 2 {
		d.MaxAttempts = 2
	}
	return &Service{
		db:          db,
		numbers:     d.Numbers,
		transitions: d.Transitions,
		recorder:    d.Recorder,
		events:      d.Events,
		metrics:     d.Metrics,
		log:         d.Log,
		now:         d.Now,
		sla:         d.ResponseSLA,
		maxAttempts: d.MaxAttempts,
	}
}

/* ================================ Actor ================================= */

// Actor turns an authenticated (id, role) pair into a policy actor, loading
// a solicitor's specializations.
func (s *Service) Actor(ctx context.Context, id uuid.UUID, role models.Role) (policy.Actor, error) {
	a := policy.Actor{ID: id, Role: role}
	if !role.Valid() {
		return a, apperr.Forbidden("unknown role")
	}
	if role != models.RoleSolicitor {
		return a, nil
	}
	var p models.SolicitorProfile
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return a, apperr.Forbidden("solicitor profile missing")
		}
		return a, apperr.Internal("load solicitor profile", err)
	}
	a.Specializations = append([]models.CaseType(nil), p.Specializations...)
	return a, nil
}

/* ================================ Create ================================ */

// CreateInput is a new case as submitted by a client.
type CreateInput struct {
	Type        models.CaseType
	Description string
	Priority    models.Priority
	Deadline    *time.Time
}

func (in *CreateInput) normalize(now time.Time) error {
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	errs := map[string][]string{}
	if !in.Type.Valid() {
		errs["type"] = append(errs["type"], "Unknown case type")
	}
	if !in.Priority.Valid() {
		errs["priority"] = append(errs["priority"], "Unknown priority")
	}
	if in.Description == "" {
		errs["description"] = append(errs["description"], "This field is required")
	} else if len(in.Description) > maxDescription {
		errs["description"] = append(errs["description"], "Must be at most 5000 characters")
	}
	if in.Deadline != nil && !in.Deadline.After(now) {
		errs["deadline"] = append(errs["deadline"], "Must be in the future")
	}
	if len(errs) > 0 {
		return apperr.Validation("Validation failed", errs)
	}
	return nil
}

// Create opens a case owned by the calling client. The case number comes
// from the monthly counter; if the insert still collides on case_number
// (e.g. a hand-inserted row ahead of the counter) a fresh number is taken
// and the insert retried.
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (*models.Case, error) {
	if !actor.IsClient() {
		return nil, apperr.Forbidden("only clients can open cases")
	}
	if err := in.normalize(s.now()); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		cs, act, err := s.createOnce(ctx, actor, in)
		if err == nil {
			s.metrics.CaseCreated(string(cs.Type))
			s.publish(ctx, act, cs.CaseNumber)
			s.log.InfoContext(ctx, "case created", "case_id", cs.ID, "case_number", cs.CaseNumber, "client_id", actor.ID)
			return cs, nil
		}
		if errors.Is(err, ErrCaseNumberTaken) && attempt < s.maxAttempts {
			s.metrics.CaseNumberRetried()
			s.log.WarnContext(ctx, "case number collision, retrying", "attempt", attempt)
			continue
		}
		return nil, s.fail(ctx, "create case", err)
	}
}

func (s *Service) createOnce(ctx context.Context, actor policy.Actor, in CreateInput) (*models.Case, *models.CaseActivity, error) {
	now := s.now().UTC()

	// Reserved in its own statement so a retry after a collision gets a new
	// number instead of replaying the rolled-back one.
	number, err := s.numbers.Next(ctx, s.db, now)
	if err != nil {
		return nil, nil, err
	}

	cs := &models.Case{
		CaseNumber:         number,
		ClientID:           actor.ID,
		Type:               in.Type,
		Status:             models.StatusOpen,
		Priority:           in.Priority,
		Description:        in.Description,
		Deadline:           in.Deadline,
		ExpectedResponseBy: now.Add(s.sla),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var act *models.CaseActivity
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cs).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrCaseNumberTaken
			}
			return apperr.FromDB(err, "case")
		}
		var err error
		act, err = s.recorder.Record(ctx, tx, cs.ID, actor.ID, activity.ActionCreated, activity.Details{
			"case_number": cs.CaseNumber,
			"type":        cs.Type,
			"priority":    cs.Priority,
			"status":      cs.Status,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return cs, act, nil
}

/* ================================= List ================================= */

// Scope narrows a solicitor's listing.
type Scope string

const (
	ScopeAll       Scope = ""
	ScopeAssigned  Scope = "assigned"
	ScopeAvailable Scope = "available"
)

// ListFilter holds optional listing filters.
type ListFilter struct {
	Status         models.CaseStatus
	Type           models.CaseType
	Priority       models.Priority
	Scope          Scope
	NeedsAttention bool
	Page           int
	PageSize       int
}

// CaseView is a case plus its computed flags.
type CaseView struct {
	models.Case
	NeedsAttention bool `json:"needs_attention"`
}

func (s *Service) view(c models.Case, now time.Time) CaseView {
	return CaseView{Case: c, NeedsAttention: lifecycle.NeedsAttention(&c, now)}
}

// visible restricts q to the cases the actor may read.
func visible(q *gorm.DB, a policy.Actor, scope Scope) *gorm.DB {
	switch a.Role {
	case models.RoleAdmin:
		switch scope {
		case ScopeAvailable:
			return q.Where("assigned_solicitor_id IS NULL AND status <> ?", models.StatusClosed)
		case ScopeAssigned:
			return q.Where("assigned_solicitor_id IS NOT NULL")
		}
		return q
	case models.RoleClient:
		return q.Where("client_id = ?", a.ID)
	case models.RoleSolicitor:
		// Unassigned cases are only ever shown as redacted previews.
		if scope == ScopeAvailable {
			if len(a.Specializations) == 0 {
				return q.Where("1 = 0")
			}
			return q.Where("assigned_solicitor_id IS NULL AND type IN ? AND status <> ?", a.Specializations, models.StatusClosed)
		}
		return q.Where("assigned_solicitor_id = ?", a.ID)
	}
	return q.Where("1 = 0")
}

func (s *Service) filtered(ctx context.Context, a policy.Actor, f ListFilter, now time.Time) *gorm.DB {
	q := visible(s.db.WithContext(ctx).Model(&models.Case{}), a, f.Scope)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.NeedsAttention {
		q = q.Where("(expected_response_by < ? OR (deadline IS NOT NULL AND deadline < ?))",
			now, now.Add(lifecycle.DeadlineWarning))
	}
	return q
}

// List returns a page of the cases visible to the actor, newest first.
// Solicitors see the cases assigned to them; unassigned ones are browsed
// through Available.
func (s *Service) List(ctx context.Context, a policy.Actor, f ListFilter) (models.Page[CaseView], error) {
	if a.IsSolicitor() && f.Scope == ScopeAvailable {
		return models.Page[CaseView]{Page: 1, PageSize: 10, Items: []CaseView{}},
			apperr.Field("scope", "Browse unassigned cases at /api/cases/available")
	}
	return s.list(ctx, a, f)
}

func (s *Service) list(ctx context.Context, a policy.Actor, f ListFilter) (models.Page[CaseView], error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	page := models.Page[CaseView]{Page: f.Page, PageSize: f.PageSize, Items: []CaseView{}}
	if f.Status != "" && !f.Status.Valid() {
		return page, apperr.Field("status", "Unknown case status")
	}
	if f.Type != "" && !f.Type.Valid() {
		return page, apperr.Field("type", "Unknown case type")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return page, apperr.Field("priority", "Unknown priority")
	}

	now := s.now()
	if err := s.filtered(ctx, a, f, now).Count(&page.Total).Error; err != nil {
		return page, s.fail(ctx, "count cases", apperr.Internal("count cases", err))
	}

	var rows []models.Case
	if err := s.filtered(ctx, a, f, now).
		Order("created_at DESC").
		Offset(utils.Offset(f.Page, f.PageSize)).Limit(f.PageSize).
		Find(&rows).Error; err != nil {
		return page, s.fail(ctx, "list cases", apperr.Internal("list cases", err))
	}
	for _, c := range rows {
		page.Items = append(page.Items, s.view(c, now))
	}
	page.Pages = utils.Pages(page.Total, f.PageSize)
	return page, nil
}

// AvailableItem is an unassigned case as shown to browsing solicitors: no
// client identity, and the description reduced to a redacted preview.
type AvailableItem struct {
	ID             uuid.UUID       `json:"id"`
	CaseNumber     string          `json:"case_number"`
	Type           models.CaseType `json:"type"`
	Priority       models.Priority `json:"priority"`
	Preview        string          `json:"preview"`
	Deadline       *time.Time      `json:"deadline"`
	CreatedAt      time.Time       `json:"created_at"`
	NeedsAttention bool            `json:"needs_attention"`
}

// Available lists unassigned, not-closed cases in the solicitor's specializations.
func (s *Service) Available(ctx context.Context, a policy.Actor, f ListFilter) (models.Page[AvailableItem], error) {
	f.Scope = ScopeAvailable
	inner, err := s.list(ctx, a, f)
	out := models.Page[AvailableItem]{
		Page: inner.Page, PageSize: inner.PageSize, Total: inner.Total, Pages: inner.Pages,
		Items: make([]AvailableItem, 0, len(inner.Items)),
	}
	if err != nil {
		return out, err
	}
	for _, v := range inner.Items {
		out.Items = append(out.Items, preview(v))
	}
	return out, nil
}

func preview(v CaseView) AvailableItem {
	return AvailableItem{
		ID:             v.ID,
		CaseNumber:     v.CaseNumber,
		Type:           v.Type,
		Priority:       v.Priority,
		Preview:        sanitize.Summary(sanitize.RedactPII(v.Description), previewLength),
		Deadline:       v.Deadline,
		CreatedAt:      v.CreatedAt,
		NeedsAttention: v.NeedsAttention,
	}
}

/* ================================= Get ================================== */

// CaseDetail is a case with its child records.
type CaseDetail struct {
	CaseView
	Notes     []models.CaseNote     `json:"notes"`
	Deadlines []models.CaseDeadline `json:"deadlines"`
	Documents []models.CaseDocument `json:"documents"`
}

// ErrPreviewOnly is returned by Get to a solicitor browsing an unassigned
// case; Preview serves them instead.
var ErrPreviewOnly = apperr.Forbidden("only a preview of this case is available until you accept it")

// Get returns a case with notes, deadlines and documents. Private notes are
// omitted for clients.
func (s *Service) Get(ctx context.Context, a policy.Actor, id uuid.UUID) (*CaseDetail, error) {
	cs, err := s.loadCase(ctx, s.db, a, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(a, cs, policy.Read); err != nil {
		return nil, err
	}
	if s.access.Browsing(a, cs) {
		return nil, ErrPreviewOnly
	}

	d := &CaseDetail{CaseView: s.view(*cs, s.now())}
	db := s.db.WithContext(ctx)

	notes := db.Where("case_id = ?", id)
	if !policy.CanSeePrivateNotes(a, cs) {
		notes = notes.Where("is_private = ?", false)
	}
	if err := notes.Order("created_at ASC").Find(&d.Notes).Error; err != nil {
		return nil, s.fail(ctx, "load notes", apperr.Internal("load notes", err))
	}
	if err := db.Where("case_id = ?", id).Order("due_at ASC").Find(&d.Deadlines).Error; err != nil {
		return nil, s.fail(ctx, "load deadlines", apperr.Internal("load deadlines", err))
	}
	if err := db.Where("case_id = ?", id).Order("created_at ASC").Find(&d.Documents).Error; err != nil {
		return nil, s.fail(ctx, "load documents", apperr.Internal("load documents", err))
	}

	// never send null arrays
	if d.Notes == nil {
		d.Notes = []models.CaseNote{}
	}
	if d.Deadlines == nil {
		d.Deadlines = []models.CaseDeadline{}
	}
	if d.Documents == nil {
		d.Documents = []models.CaseDocument{}
	}
	return d, nil
}

// Preview returns the redacted summary of a case: no client identity and
// the description reduced to a PII-free excerpt.
func (s *Service) Preview(ctx context.Context, a policy.Actor, id uuid.UUID) (*AvailableItem, error) {
	cs, err := s.loadCase(ctx, s.db, a, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(a, cs, policy.Read); err != nil {
		return nil, err
	}
	p := preview(s.view(*cs, s.now()))
	return &p, nil
}

/* =============================== Helpers ================================ */

// loadCase fetches a case, optionally locking it. A missing case is a 404
// for admins; everyone else gets the same denial as for a case they cannot
// see, so a missing id looks the same as a forbidden one.
func (s *Service) loadCase(ctx context.Context, db *gorm.DB, a policy.Actor, id uuid.UUID, lock bool) (*models.Case, error) {
	q := db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var cs models.Case
	if err := q.First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if a.IsAdmin() {
				return nil, apperr.NotFound("case")
			}
			return nil, policy.ErrDenied
		}
		return nil, apperr.Internal("load case", err)
	}
	return &cs, nil
}

// fail logs internal failures; invariant violations are logged at error level
// and counted since they mean a compound operation had to be rolled back.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindInvariant:
		s.metrics.InvariantViolated()
		s.log.ErrorContext(ctx, "invariant violation", "op", op, "error", err)
	case apperr.KindInternal:
		s.log.ErrorContext(ctx, "operation failed", "op", op, "error", err)
	}
	return err
}

// publish forwards a committed activity to the event feed. The timeline row
// is already durable, so a publish failure is only logged.
func (s *Service) publish(ctx context.Context, a *models.CaseActivity, caseNumber string) {
	if a == nil {
		return
	}
	if err := s.events.Publish(ctx, events.FromActivity(a, caseNumber)); err != nil {
		s.log.WarnContext(ctx, "publish case event failed", "case_id", a.CaseID, "action", a.Action, "error", err)
	}
}
