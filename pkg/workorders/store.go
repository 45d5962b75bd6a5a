// Package workorders implements the three-stage work-order lifecycle:
// pending_approval -> approved -> completed. Every order lives in exactly one
// stage at a time and only ever moves forward.
package workorders

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusCompleted       = "completed"
)

var ErrNotFound = errors.New("work order not found in expected stage")

// Requester identifies who asked for the order, as read off their badge.
type Requester struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type WorkOrder struct {
	OrderID       string `gorm:"primaryKey;column:order_id" json:"order_id"`
	Status        string `gorm:"index" json:"status"`
	Priority      string `json:"priority"`
	Equipment     string `json:"equipment"`
	Description   string `json:"description"`
	RequesterID   string `gorm:"index" json:"-"`
	RequesterName string `json:"-"`
	RequesterRole string `json:"-"`
	BadgeVerified bool   `json:"badge_verified"`
	EscalatedTo   string `json:"escalated_to,omitempty"`
	CreatedAt     string `json:"created_at"`
	ApprovedAt    string `json:"approved_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

func (w WorkOrder) Requester() Requester {
	return Requester{ID: w.RequesterID, Name: w.RequesterName, Role: w.RequesterRole}
}

// NormalizePriority maps free-form model output onto the four known levels,
// defaulting to medium.
func NormalizePriority(p string) string {
	switch p {
	case "low", "medium", "high", "critical":
		return p
	default:
		return "medium"
	}
}

type Store struct {
	db *gorm.DB
}

// Open creates a sqlite-backed store at path and migrates the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open work order store: %w", err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&WorkOrder{}); err != nil {
		return nil, fmt.Errorf("migrate work orders: %w", err)
	}
	return &Store{db: db}, nil
}

var orderSeq atomic.Int64

// generateOrderID is timestamp-based for operator readability, with a
// process-wide sequence so two orders in the same second stay distinct.
func generateOrderID() string {
	return fmt.Sprintf("WO-%s-%04d", time.Now().UTC().Format("20060102150405"), orderSeq.Add(1))
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateApproved writes an already-approved order. Used when the requester's
// badge carries the create_work_order permission: the pending stage is
// skipped entirely.
func (s *Store) CreateApproved(ctx context.Context, equipment, priority, description string, requester Requester) (WorkOrder, error) {
	now := nowUTC()
	order := WorkOrder{
		OrderID:       generateOrderID(),
		Status:        StatusApproved,
		Priority:      NormalizePriority(priority),
		Equipment:     equipment,
		Description:   description,
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		RequesterRole: requester.Role,
		BadgeVerified: true,
		CreatedAt:     now,
		ApprovedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return WorkOrder{}, fmt.Errorf("create approved order: %w", err)
	}
	return order, nil
}

// CreateEscalated writes a pending_approval order routed to a supervisor.
func (s *Store) CreateEscalated(ctx context.Context, equipment, priority, description string, requester Requester, escalateTo string) (WorkOrder, error) {
	order := WorkOrder{
		OrderID:       generateOrderID(),
		Status:        StatusPendingApproval,
		Priority:      NormalizePriority(priority),
		Equipment:     equipment,
		Description:   description,
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		RequesterRole: requester.Role,
		BadgeVerified: true,
		EscalatedTo:   escalateTo,
		CreatedAt:     nowUTC(),
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return WorkOrder{}, fmt.Errorf("create escalated order: %w", err)
	}
	return order, nil
}

// Approve moves a pending order forward. Returns ErrNotFound when the order
// does not exist or is not in pending_approval; orders never regress.
func (s *Store) Approve(ctx context.Context, orderID string) (WorkOrder, error) {
	return s.advance(ctx, orderID, StatusPendingApproval, StatusApproved)
}

// Complete moves an approved order forward.
func (s *Store) Complete(ctx context.Context, orderID string) (WorkOrder, error) {
	return s.advance(ctx, orderID, StatusApproved, StatusCompleted)
}

func (s *Store) advance(ctx context.Context, orderID, from, to string) (WorkOrder, error) {
	var order WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("order_id = ? AND status = ?", orderID, from).First(&order)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return res.Error
		}
		order.Status = to
		switch to {
		case StatusApproved:
			order.ApprovedAt = nowUTC()
		case StatusCompleted:
			order.CompletedAt = nowUTC()
		}
		return tx.Save(&order).Error
	})
	if err != nil {
		return WorkOrder{}, err
	}
	return order, nil
}

func (s *Store) Pending(ctx context.Context) ([]WorkOrder, error) {
	return s.byStatus(ctx, StatusPendingApproval)
}

func (s *Store) Approved(ctx context.Context) ([]WorkOrder, error) {
	return s.byStatus(ctx, StatusApproved)
}

func (s *Store) Completed(ctx context.Context) ([]WorkOrder, error) {
	return s.byStatus(ctx, StatusCompleted)
}

func (s *Store) byStatus(ctx context.Context, status string) ([]WorkOrder, error) {
	var orders []WorkOrder
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ByRequester lists every order a user asked for, across all stages.
func (s *Store) ByRequester(ctx context.Context, userID string) ([]WorkOrder, error) {
	var orders []WorkOrder
	if err := s.db.WithContext(ctx).Where("requester_id = ?", userID).Order("created_at").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Get returns one order regardless of stage.
func (s *Store) Get(ctx context.Context, orderID string) (WorkOrder, error) {
	var order WorkOrder
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WorkOrder{}, ErrNotFound
	}
	if err != nil {
		return WorkOrder{}, err
	}
	return order, nil
}
