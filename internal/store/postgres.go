package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"livechat-service/internal/models"
)

// PostgresStore persists threads in two relational tables (threads and
// messages) through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore migrates the schema and returns the engine.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&models.ChatThread{}, &models.ChatMessage{}); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, clientID string, info models.ClientInfo, msg models.ChatMessage) error {
	msg.ClientID = clientID

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.ChatThread
		err := tx.Where("client_id = ?", clientID).First(&thread).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			thread = models.ChatThread{
				ClientID:   clientID,
				ClientInfo: info,
				Status:     models.ThreadActive,
				CreatedAt:  msg.CreatedAt,
				UpdatedAt:  msg.CreatedAt,
			}
			if err := tx.Omit("Messages").Create(&thread).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			updates := map[string]any{
				"status":     models.ThreadActive,
				"updated_at": msg.CreatedAt,
			}
			if info.Name != "" {
				updates["client_name"] = info.Name
			}
			if info.Email != "" {
				updates["client_email"] = info.Email
			}
			if err := tx.Model(&models.ChatThread{}).Where("client_id = ?", clientID).Updates(updates).Error; err != nil {
				return err
			}
		}

		return tx.Create(&msg).Error
	})
}

func (s *PostgresStore) GetThread(ctx context.Context, clientID string) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at, seq").
		Find(&thread.Messages).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *PostgresStore) ListThreads(ctx context.Context, filter ListFilter) ([]models.ChatThread, error) {
	q := s.db.WithContext(ctx).Model(&models.ChatThread{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var threads []models.ChatThread
	if err := q.Order("updated_at DESC").Find(&threads).Error; err != nil {
		return nil, err
	}

	out := threads[:0]
	for i := range threads {
		t := &threads[i]
		if err := s.db.WithContext(ctx).
			Where("client_id = ?", t.ClientID).
			Order("created_at, seq").
			Find(&t.Messages).Error; err != nil {
			return nil, err
		}
		if t.IsGhost() {
			// Ghosts are purged on sight rather than surfaced.
			s.db.WithContext(ctx).Where("client_id = ?", t.ClientID).Delete(&models.ChatThread{})
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, clientID string, status models.ThreadStatus) error {
	res := s.db.WithContext(ctx).Model(&models.ChatThread{}).
		Where("client_id = ?", clientID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrThreadNotFound
	}
	return nil
}

func (s *PostgresStore) AdvanceDelivery(ctx context.Context, clientID string, sender models.SenderRole, status models.DeliveryStatus) error {
	below := statusesBelow(status)
	if len(below) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("client_id = ? AND sender_role = ? AND delivery_status IN ?", clientID, sender, below).
		Update("delivery_status", status).Error
}

func (s *PostgresStore) DeleteThread(ctx context.Context, clientID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", clientID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		res := tx.Where("client_id = ?", clientID).Delete(&models.ChatThread{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrThreadNotFound
		}
		return nil
	})
}
