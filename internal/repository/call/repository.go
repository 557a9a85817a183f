package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/pkg/assistant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormCallRepo struct {
	db *gorm.DB
}

func NewGormCallRepo(db *gorm.DB) *GormCallRepo {
	return &GormCallRepo{db: db}
}

// CreateOrGetCall implements call.Store.
func (g *GormCallRepo) CreateOrGetCall(ctx context.Context, callSid, phone string) (*call.Call, error) {
	var entity CallEntity
	err := g.db.WithContext(ctx).Where("call_sid = ?", callSid).First(&entity).Error
	if err == nil {
		return entity.ToDomain(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup call %s: %w", callSid, err)
	}

	entity = CallEntity{
		ID:      uuid.New(),
		CallSid: callSid,
		Phone:   phone,
	}
	if err := g.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return nil, fmt.Errorf("create call %s: %w", callSid, err)
	}
	return entity.ToDomain(), nil
}

// AddMessage implements call.Store.
func (g *GormCallRepo) AddMessage(ctx context.Context, callID uuid.UUID, role assistant.Role, text string) error {
	entity := MessageEntity{
		ID:      uuid.New(),
		CallID:  callID,
		MsgRole: string(role),
		Text:    text,
	}
	if err := g.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// GetMessages implements call.Store.
func (g *GormCallRepo) GetMessages(ctx context.Context, callID uuid.UUID) ([]call.Message, error) {
	var entities []MessageEntity
	if err := g.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("created_at asc").
		Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	msgs := make([]call.Message, 0, len(entities))
	for _, e := range entities {
		msgs = append(msgs, *e.ToDomain())
	}
	return msgs, nil
}

// FinishCall implements call.Store.
func (g *GormCallRepo) FinishCall(ctx context.Context, callID uuid.UUID, outcome call.Outcome, recordingPath string) error {
	now := time.Now()
	updates := map[string]any{
		"outcome":  string(outcome),
		"ended_at": &now,
	}
	if recordingPath != "" {
		updates["recording_path"] = recordingPath
	}
	if err := g.db.WithContext(ctx).
		Model(&CallEntity{}).
		Where("id = ?", callID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("finish call: %w", err)
	}
	return nil
}

// ListCalls implements call.Store.
func (g *GormCallRepo) ListCalls(ctx context.Context, limit int) ([]call.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	var entities []CallEntity
	if err := g.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	calls := make([]call.Call, 0, len(entities))
	for _, e := range entities {
		calls = append(calls, *e.ToDomain())
	}
	return calls, nil
}

// UpsertLead implements call.Store.
func (g *GormCallRepo) UpsertLead(ctx context.Context, phone string, outcome call.Outcome) error {
	now := time.Now()
	entity := LeadEntity{
		ID:          uuid.New(),
		Phone:       phone,
		Outcome:     string(outcome),
		DoNotCall:   outcome == call.OutcomeDoNotCall,
		ContactedAt: &now,
		LastCalled:  &now,
	}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "phone"}},
		DoUpdates: clause.Assignments(map[string]any{
			"outcome":      string(outcome),
			"do_not_call":  outcome == call.OutcomeDoNotCall,
			"contacted_at": &now,
			"last_called":  &now,
		}),
	}).Create(&entity).Error
	if err != nil {
		return fmt.Errorf("upsert lead %s: %w", phone, err)
	}
	return nil
}

// IsDoNotCall implements call.Store.
func (g *GormCallRepo) IsDoNotCall(ctx context.Context, phone string) (bool, error) {
	var entity LeadEntity
	err := g.db.WithContext(ctx).Where("phone = ?", phone).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup lead %s: %w", phone, err)
	}
	return entity.DoNotCall, nil
}

// ListLeads implements call.Store.
func (g *GormCallRepo) ListLeads(ctx context.Context) ([]call.Lead, error) {
	var entities []LeadEntity
	if err := g.db.WithContext(ctx).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	leads := make([]call.Lead, 0, len(entities))
	for _, e := range entities {
		leads = append(leads, *e.ToDomain())
	}
	return leads, nil
}

// AddLead implements call.Store.
func (g *GormCallRepo) AddLead(ctx context.Context, phone, name string) (*call.Lead, error) {
	entity := LeadEntity{
		ID:    uuid.New(),
		Phone: phone,
		Name:  name,
	}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoNothing: true,
	}).Create(&entity).Error
	if err != nil {
		return nil, fmt.Errorf("add lead %s: %w", phone, err)
	}
	var stored LeadEntity
	if err := g.db.WithContext(ctx).Where("phone = ?", phone).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("read back lead %s: %w", phone, err)
	}
	return stored.ToDomain(), nil
}

// GetSetting implements call.Store. A missing key is not an error, the
// caller gets an empty string.
func (g *GormCallRepo) GetSetting(ctx context.Context, key string) (string, error) {
	var entity SettingEntity
	err := g.db.WithContext(ctx).Where("key = ?", key).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup setting %s: %w", key, err)
	}
	return entity.Value, nil
}

// SetSetting implements call.Store.
func (g *GormCallRepo) SetSetting(ctx context.Context, key, value string) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{"value": value}),
	}).Create(&SettingEntity{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

var _ call.Store = (*GormCallRepo)(nil)
