package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flashcard is a single question-answer unit under spaced-repetition review.
type Flashcard struct {
	ID        int64
	FolderID  int64
	BatchID   *int64
	Question  string
	Answer    string
	OtherData map[string]any
	RepData   RepData
	NextDue   *time.Time
	CreatedAt time.Time
}

// RepData holds a card's append-only, chronological review history.
type RepData struct {
	History []ReviewEntry `json:"history"`
}

// ReviewEntry records one review event. It serializes as a two-element
// [score, "YYYY-MM-DD HH:MM:SS"] array to stay compatible with the stored
// rep_data format.
type ReviewEntry struct {
	Score int
	At    string
}

func (e ReviewEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Score, e.At})
}

func (e *ReviewEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("review entry must be a [score, timestamp] pair: %w", err)
	}
	if err := json.Unmarshal(raw[0], &e.Score); err != nil {
		return fmt.Errorf("review entry score: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.At); err != nil {
		return fmt.Errorf("review entry timestamp: %w", err)
	}
	return nil
}

// CardDraft is a flashcard about to be persisted. Generated fields beyond
// question and answer ride along in Other; NextDue is nil for cards created
// without an initial schedule, and FolderID nil files the card under root.
type CardDraft struct {
	Question string
	Answer   string
	Other    map[string]any
	NextDue  *time.Time
	FolderID *int64
}

// Batch is the set of flashcards produced by one capture event.
type Batch struct {
	ID         int64
	SourceText string
	CreatedAt  time.Time
}
