package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system. It never changes after signup.
type Role string

const (
	RoleClient    Role = "client"
	RoleSolicitor Role = "solicitor"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleSolicitor, RoleAdmin:
		return true
	}
	return false
}

// CaseType is the fixed set of legal areas a case (and a specialization) can take.
type CaseType string

const (
	CaseFamily      CaseType = "family"
	CaseHousing     CaseType = "housing"
	CaseEmployment  CaseType = "employment"
	CaseImmigration CaseType = "immigration"
	CaseCriminal    CaseType = "criminal"
	CaseBenefits    CaseType = "benefits"
	CaseDebt        CaseType = "debt"
)

// CaseTypes lists every case type in display order.
func CaseTypes() []CaseType {
	return []CaseType{CaseFamily, CaseHousing, CaseEmployment, CaseImmigration, CaseCriminal, CaseBenefits, CaseDebt}
}

func (t CaseType) Valid() bool {
	for _, v := range CaseTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	StatusOpen           CaseStatus = "open"
	StatusInProgress     CaseStatus = "in_progress"
	StatusPendingReview  CaseStatus = "pending_review"
	StatusAwaitingClient CaseStatus = "awaiting_client"
	StatusOnHold         CaseStatus = "on_hold"
	StatusClosed         CaseStatus = "closed"
)

// CaseStatuses lists every status in board-column order.
func CaseStatuses() []CaseStatus {
	return []CaseStatus{StatusOpen, StatusInProgress, StatusPendingReview, StatusAwaitingClient, StatusOnHold, StatusClosed}
}

func (s CaseStatus) Valid() bool {
	for _, v := range CaseStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// Priority of a case.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

func (p Priority) Valid() bool {
	for _, v := range Priorities() {
		if v == p {
			return true
		}
	}
	return false
}

// Permission is an admin capability tag.
type Permission string

const (
	PermManageUsers    Permission = "manage_users"
	PermManageCases    Permission = "manage_cases"
	PermViewReports    Permission = "view_reports"
	PermManageSettings Permission = "manage_settings"
)

func Permissions() []Permission {
	return []Permission{PermManageUsers, PermManageCases, PermViewReports, PermManageSettings}
}

// EmploymentStatus of a client, used for legal-aid eligibility.
type EmploymentStatus string

const (
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentStudent      EmploymentStatus = "student"
	EmploymentRetired      EmploymentStatus = "retired"
)

/* =============================== Entities =============================== */

// User is the identity record shared by every role. Role-specific data lives
// in exactly one of the profile tables, keyed by the same id.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	ClientProfile    *ClientProfile    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	SolicitorProfile *SolicitorProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	AdminProfile     *AdminProfile     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// ClientProfile holds client-only details.
type ClientProfile struct {
	UserID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"user_id"`
	Address                 string           `json:"address"`
	DateOfBirth             *time.Time       `gorm:"type:date" json:"date_of_birth,omitempty"`
	NationalInsuranceNumber *string          `gorm:"type:varchar(9);uniqueIndex" json:"national_insurance_number,omitempty"`
	EmploymentStatus        EmploymentStatus `gorm:"type:varchar(20)" json:"employment_status"`
	AnnualIncomePence       int64            `json:"annual_income_pence"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

// SolicitorProfile holds solicitor-only details, including the capacity and
// specialization data the assignment rules depend on.
type SolicitorProfile struct {
	UserID            uuid.UUID                     `gorm:"type:uuid;primaryKey" json:"user_id"`
	SolicitorNumber   string                        `gorm:"type:varchar(40);uniqueIndex;not null" json:"solicitor_number"`
	Specializations   datatypes.JSONSlice[CaseType] `gorm:"type:jsonb;not null" json:"specializations"`
	FirmName          string                        `json:"firm_name"`
	FirmAddress       string                        `json:"firm_address"`
	YearsOfExperience int                           `json:"years_of_experience"`
	Verified          bool                          `gorm:"not null;default:false;index" json:"verified"`
	MaxCases          int                           `gorm:"not null;default:10" json:"max_cases"`
	AvailableHours    int                           `gorm:"not null;default:0" json:"available_hours"`
	AverageRating     float64                       `gorm:"not null;default:0" json:"average_rating"`
	UpdatedAt         time.Time                     `json:"updated_at"`
}

// Handles reports whether t is one of the solicitor's specializations.
func (p *SolicitorProfile) Handles(t CaseType) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Specializations {
		if s == t {
			return true
		}
	}
	return false
}

// AdminProfile holds admin permissions.
type AdminProfile struct {
	UserID      uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"user_id"`
	Permissions datatypes.JSONSlice[Permission] `gorm:"type:jsonb;not null" json:"permissions"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// Case represents a legal matter submitted by a client.
type Case struct {
	ID                  uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseNumber          string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"case_number"`
	ClientID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	AssignedSolicitorID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_solicitor_id"`
	Type                CaseType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status              CaseStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Priority            Priority   `gorm:"type:varchar(10);not null;default:'medium'" json:"priority"`
	Description         string     `gorm:"type:text;not null" json:"description"`
	Deadline            *time.Time `json:"deadline"`
	ExpectedResponseBy  time.Time  `gorm:"not null" json:"expected_response_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Client     *User          `gorm:"foreignKey:ClientID;constraint:OnDelete:RESTRICT" json:"-"`
	Activities []CaseActivity `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Notes      []CaseNote     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Deadlines  []CaseDeadline `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Documents  []CaseDocument `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// IsAssigned reports whether a solicitor has taken the case.
func (c *Case) IsAssigned() bool { return c.AssignedSolicitorID != nil }

// AssignedTo reports whether the case is assigned to the given user.
func (c *Case) AssignedTo(id uuid.UUID) bool {
	return c.AssignedSolicitorID != nil && *c.AssignedSolicitorID == id
}

// CaseActivity is an append-only audit entry. The serial ID breaks ties
// between entries recorded in the same instant.
type CaseActivity struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CaseID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_activity_case_time" json:"case_id"`
	ActorID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"actor_id"`
	Action    string         `gorm:"type:varchar(60);not null" json:"action"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time      `gorm:"not null;index:idx_activity_case_time" json:"created_at"`
}

// CaseNote is a note on a case; private notes are hidden from the client.
type CaseNote struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsPrivate bool      `gorm:"not null;default:false" json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

// CaseDeadline is a dated checklist item on a case.
type CaseDeadline struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	Title       string     `gorm:"not null" json:"title"`
	DueAt       time.Time  `gorm:"not null" json:"due_at"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CaseDocument links an object in external storage to a case.
type CaseDocument struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	UploadedBy   uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by"`
	Key          string    `gorm:"not null" json:"-"`
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int64     `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
	CreatedAt    time.Time `json:"created_at"`

	Case Case `gorm:"foreignKey:CaseID;references:ID" json:"-"`
}

// Rating is one user's score for one solicitor.
type Rating struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SolicitorID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_rating_solicitor_rater" json:"solicitor_id"`
	RaterID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_rating_solicitor_rater" json:"rater_id"`
	Score       int       `gorm:"not null;check:score BETWEEN 1 AND 5" json:"score"`
	Comment     string    `gorm:"type:text" json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// CaseSequence is the per-(prefix, month) case-number counter.
type CaseSequence struct {
	Prefix    string `gorm:"type:varchar(16);primaryKey"`
	Period    string `gorm:"type:char(4);primaryKey"` // YYMM
	LastValue int    `gorm:"not null"`
}

// All returns every model, in migration order.
func All() []any {
	return []any{
		&User{}, &ClientProfile{}, &SolicitorProfile{}, &AdminProfile{},
		&Case{}, &CaseActivity{}, &CaseNote{}, &CaseDeadline{}, &CaseDocument{},
		&Rating{}, &CaseSequence{},
	}
}
