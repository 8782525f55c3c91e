package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when a room code or id does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomAlreadyStarted is returned when joining a room that left the waiting state.
	ErrRoomAlreadyStarted = errors.New("room already started")
	// ErrRoomCodeTaken is returned when creating a room with a code already in use.
	ErrRoomCodeTaken = errors.New("room code already exists")
	// ErrRoomCodeRequired is returned when a room code is blank.
	ErrRoomCodeRequired = errors.New("room code is required")
	// ErrPlayerNameRequired is returned when joining without a display name.
	ErrPlayerNameRequired = errors.New("player name is required")
	// ErrInvalidTransition is returned for a room status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid room status transition")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrQuestionNotFound  = errors.New("question not found")
	// ErrInvalidQuestion wraps every question validation failure.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidTarget is returned when a buff targets someone else or a debuff targets its user.
	ErrInvalidTarget = errors.New("invalid item target")
	// ErrAnswerLocked is returned once the current question already has a submission.
	ErrAnswerLocked = errors.New("answer already submitted for this question")
	// ErrNoActiveQuestion is returned when acting outside a running question.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrInsufficientItem matches any *InsufficientItemError.
	ErrInsufficientItem = errors.New("insufficient item")
)

// InsufficientItemError reports an attempt to consume an item the player does not hold.
type InsufficientItemError struct {
	Kind ItemKind
}

func (e *InsufficientItemError) Error() string {
	return fmt.Sprintf("no %s left in inventory", e.Kind)
}

func (e *InsufficientItemError) Is(target error) bool {
	return target == ErrInsufficientItem
}

func invalidQuestion(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuestion, reason)
}
