package implementation

import (
	"context"
	"errors"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/mapper"
	"kb-assistant-be/internal/model"
	"kb-assistant-be/internal/repository/contract"
	"kb-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *ConversationRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConversationRepositoryImpl) Create(ctx context.Context, conv *entity.Conversation) error {
	m, err := r.mapper.ToModel(conv)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *ConversationRepositoryImpl) Update(ctx context.Context, conv *entity.Conversation) error {
	m, err := r.mapper.ToModel(conv)
	if err != nil {
		return err
	}

	query := r.applySpecifications(
		r.db.WithContext(ctx).Model(&model.Conversation{}),
		specification.OwnedConversation{UserID: conv.UserId, ID: conv.Id},
	)
	result := query.Updates(map[string]interface{}{
		"messages":      m.Messages,
		"selected_docs": m.SelectedDocs,
		"session_token": m.SessionToken,
		"updated_at":    m.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := r.applySpecifications(
		r.db.WithContext(ctx),
		specification.OwnedConversation{UserID: userID, ID: id},
	)
	result := query.Delete(&model.Conversation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) FindByID(ctx context.Context, userID, id uuid.UUID) (*entity.Conversation, error) {
	var m model.Conversation
	query := r.applySpecifications(
		r.db.WithContext(ctx),
		specification.OwnedConversation{UserID: userID, ID: id},
	)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

func (r *ConversationRepositoryImpl) FindAllByUser(ctx context.Context, userID uuid.UUID) ([]*entity.Conversation, error) {
	var models []*model.Conversation
	query := r.applySpecifications(
		r.db.WithContext(ctx),
		specification.UserOwnedBy{UserID: userID},
		specification.NewestFirst{},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models)
}
