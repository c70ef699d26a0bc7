// Package agentconfig persists the mutable agent identity served on the
// admin surface. A single row holds the fields operators may edit
// without a restart; the agent card merges them in at read time.
package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AgentInfo is the editable part of the agent's public identity.
// Exactly one row exists, keyed by a fixed id.
type AgentInfo struct {
	ID          int       `gorm:"primaryKey;column:id" json:"-"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	Greeting    string    `gorm:"column:greeting" json:"greeting"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (AgentInfo) TableName() string {
	return "agent_info"
}

const singletonID = 1

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&AgentInfo{}); err != nil {
		return nil, fmt.Errorf("agentconfig: running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored identity, or nil when nothing was ever saved.
func (s *Store) Get(ctx context.Context) (*AgentInfo, error) {
	info := &AgentInfo{}
	err := s.db.WithContext(ctx).
		Where("id = ?", singletonID).
		First(info).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

// Set upserts the singleton row.
func (s *Store) Set(ctx context.Context, info *AgentInfo) error {
	if info.Name == "" {
		return fmt.Errorf("agentconfig: name is required")
	}
	info.ID = singletonID
	info.UpdatedAt = time.Now().UTC()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "greeting", "updated_at"}),
	}).Create(info).Error
}
