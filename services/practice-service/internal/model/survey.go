package model

import (
	"encoding/json"
	"time"
)

const (
	SurveyStatusDraft    = "draft"
	SurveyStatusActive   = "active"
	SurveyStatusPaused   = "paused"
	SurveyStatusArchived = "archived"
)

type Survey struct {
	ID         string
	PracticeID string
	Slug       string
	Title      string
	Status     string
	StartsAt   *time.Time
	EndsAt     *time.Time
	DeletedAt  *time.Time
	CreatedAt  time.Time
}

// IsActive is true for an active, undeleted survey whose window contains now.
func (s Survey) IsActive(now time.Time) bool {
	if s.Status != SurveyStatusActive || s.DeletedAt != nil {
		return false
	}
	if s.StartsAt != nil && now.Before(*s.StartsAt) {
		return false
	}
	if s.EndsAt != nil && !now.Before(*s.EndsAt) {
		return false
	}
	return true
}

type Response struct {
	ID                  string
	SurveyID            string
	NPSScore            int
	FreeText            string
	Answers             json.RawMessage
	GoogleReviewClicked bool
	CreatedAt           time.Time
}

// NPS buckets.
const (
	NPSDetractor = "detractor"
	NPSPassive   = "passive"
	NPSPromoter  = "promoter"
)

func (r Response) Category() string {
	switch {
	case r.NPSScore >= 9:
		return NPSPromoter
	case r.NPSScore >= 7:
		return NPSPassive
	default:
		return NPSDetractor
	}
}

const MaxAlertNoteLength = 2000

type Alert struct {
	ID         string
	PracticeID string
	ResponseID string
	IsRead     bool
	Note       string
	CreatedAt  time.Time
}
