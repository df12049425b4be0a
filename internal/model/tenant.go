package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantTrial     TenantStatus = "trial"
)

// Valid reports whether the status is one of the known values.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantSuspended, TenantTrial:
		return true
	}
	return false
}

// SubscriptionPlan determines the resource ceilings a tenant gets.
type SubscriptionPlan string

const (
	PlanFree       SubscriptionPlan = "free"
	PlanPro        SubscriptionPlan = "pro"
	PlanEnterprise SubscriptionPlan = "enterprise"
)

func (p SubscriptionPlan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Free plan defaults applied at registration.
const (
	FreePlanMaxUsers    = 5
	FreePlanMaxProjects = 3
)

// Tenant represents an isolated organization. Every other entity (except
// super_admin users) belongs to exactly one tenant. The subdomain is the
// only globally-unique human-facing identifier and is always stored
// lowercase.
type Tenant struct {
	ID               uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Name             string           `json:"name" gorm:"type:varchar(100);not null"`
	Subdomain        string           `json:"subdomain" gorm:"type:varchar(63);uniqueIndex;not null"`
	Status           TenantStatus     `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	SubscriptionPlan SubscriptionPlan `json:"subscription_plan" gorm:"type:varchar(20);not null;default:'free'"`
	MaxUsers         int              `json:"max_users" gorm:"not null;default:5"`
	MaxProjects      int              `json:"max_projects" gorm:"not null;default:3"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
