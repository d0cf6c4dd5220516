package studysets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"gorm.io/gorm"
)

var (
	// ErrSetNotFound is returned when no set matches the id
	ErrSetNotFound = errors.New("study set not found")
	// ErrNotOwner is returned when the requesting user does not own the set
	ErrNotOwner = errors.New("unauthorized access to study set")
	// ErrIndexOutOfRange is returned for a jingle position outside the list
	ErrIndexOutOfRange = errors.New("jingle index out of range")
)

// Service manages study sets and their embedded jingle lists
type Service struct {
	db *gorm.DB
}

// NewService creates a study set service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create creates an empty set for the user
func (s *Service) Create(ctx context.Context, userID, subject string) (*models.StudySet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	set := &models.StudySet{
		ID:      uuid.New(),
		UserID:  uid,
		Subject: subject,
		Jingles: models.JingleList{},
	}
	if err := s.db.WithContext(ctx).Create(set).Error; err != nil {
		return nil, fmt.Errorf("failed to create study set: %w", err)
	}
	return set, nil
}

// Get fetches a set by id
func (s *Service) Get(ctx context.Context, setID string) (*models.StudySet, error) {
	id, err := uuid.Parse(setID)
	if err != nil {
		return nil, ErrSetNotFound
	}

	var set models.StudySet
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load study set: %w", err)
	}
	return &set, nil
}

// GetOwned fetches a set and verifies the requesting user owns it
func (s *Service) GetOwned(ctx context.Context, setID, userID string) (*models.StudySet, error) {
	set, err := s.Get(ctx, setID)
	if err != nil {
		return nil, err
	}
	if set.UserID.String() != userID {
		return nil, ErrNotOwner
	}
	return set, nil
}

// ListByUser returns all of a user's sets, newest first
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.StudySet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	var sets []models.StudySet
	err = s.db.WithContext(ctx).
		Where("user_id = ?", uid).
		Order("created_at DESC").
		Find(&sets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list study sets: %w", err)
	}
	return sets, nil
}

// AddJingle appends a jingle to the set's embedded list. The whole list is
// rewritten; jingles have positional identity only.
func (s *Service) AddJingle(ctx context.Context, setID, userID string, jingle models.Jingle) (*models.StudySet, error) {
	set, err := s.GetOwned(ctx, setID, userID)
	if err != nil {
		return nil, err
	}

	set.Jingles = append(set.Jingles, jingle)
	if err := s.db.WithContext(ctx).Model(set).Update("jingles", set.Jingles).Error; err != nil {
		return nil, fmt.Errorf("failed to add jingle: %w", err)
	}
	return set, nil
}

// RemoveJingle deletes the jingle at the given position
func (s *Service) RemoveJingle(ctx context.Context, setID, userID string, index int) (*models.StudySet, error) {
	set, err := s.GetOwned(ctx, setID, userID)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(set.Jingles) {
		return nil, ErrIndexOutOfRange
	}

	set.Jingles = append(set.Jingles[:index], set.Jingles[index+1:]...)
	if err := s.db.WithContext(ctx).Model(set).Update("jingles", set.Jingles).Error; err != nil {
		return nil, fmt.Errorf("failed to remove jingle: %w", err)
	}
	return set, nil
}

// SetStitchedAudio records the stitched audio URL on the set
func (s *Service) SetStitchedAudio(ctx context.Context, setID, url string) error {
	id, err := uuid.Parse(setID)
	if err != nil {
		return ErrSetNotFound
	}

	res := s.db.WithContext(ctx).Model(&models.StudySet{}).
		Where("id = ?", id).
		Update("stitched_audio_url", url)
	if res.Error != nil {
		return fmt.Errorf("failed to record stitched audio: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSetNotFound
	}
	return nil
}

// Delete removes a set after verifying ownership
func (s *Service) Delete(ctx context.Context, setID, userID string) error {
	set, err := s.GetOwned(ctx, setID, userID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(set).Error; err != nil {
		return fmt.Errorf("failed to delete study set: %w", err)
	}
	return nil
}
