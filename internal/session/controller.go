package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mln131-quiz/internal/domain"
)

const (
	// DefaultBaseDuration is the countdown length of a question, in time units.
	DefaultBaseDuration = 30
	// DefaultTimeUnit is the length of one countdown step.
	DefaultTimeUnit = time.Second
)

// Submission is the answer state of the current question.
type Submission int

const (
	NotAnswered Submission = iota
	Answered
	TimedOut
)

func (s Submission) String() string {
	switch s {
	case Answered:
		return "answered"
	case TimedOut:
		return "timed_out"
	}
	return "not_answered"
}

// Submitter persists an answer; app.PlayerStore satisfies it.
type Submitter interface {
	SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) (domain.AnswerOutcome, error)
}

// Result describes one submitted answer.
type Result struct {
	QuestionIndex int
	QuestionID    string
	// Selected is the chosen option, or -1 when the countdown ran out.
	Selected   int
	IsCorrect  bool
	TimeUsedMs int
	Points     int
	Outcome    domain.AnswerOutcome
}

// State is a point-in-time copy of the controller for rendering.
type State struct {
	Active        bool
	QuestionIndex int
	QuestionID    string
	Remaining     int
	Submission    Submission
	Selected      int
	Confused      bool
	BoostArmed    bool
	PendingBonus  int
}

// Config tunes the countdown.
type Config struct {
	BaseDuration int
	TimeUnit     time.Duration
}

// Controller runs the countdown and answer lifecycle for one player in one room.
// It is safe for concurrent use: ticks, user input and inbound item effects may race.
type Controller struct {
	playerID  string
	submitter Submitter
	base      int
	unit      time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu            sync.Mutex
	active        bool
	index         int
	question      domain.Question
	remaining     int
	pendingBonus  int
	submission    Submission
	selected      int
	boost         int
	holds         int
	confusedUntil time.Time
}

func NewController(playerID string, submitter Submitter, cfg Config, logger *slog.Logger) *Controller {
	return NewControllerWithClock(playerID, submitter, cfg, logger, time.Now)
}

// NewControllerWithClock allows deterministic confusion windows in tests.
func NewControllerWithClock(playerID string, submitter Submitter, cfg Config, logger *slog.Logger, now func() time.Time) *Controller {
	if cfg.BaseDuration <= 0 {
		cfg.BaseDuration = DefaultBaseDuration
	}
	if cfg.TimeUnit <= 0 {
		cfg.TimeUnit = DefaultTimeUnit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		playerID:  playerID,
		submitter: submitter,
		base:      cfg.BaseDuration,
		unit:      cfg.TimeUnit,
		now:       now,
		logger:    logger.With("player_id", playerID),
		index:     -1,
		selected:  -1,
	}
}

// EnterQuestion starts the countdown for question index. Re-entering the current index is a
// no-op and an earlier index is rejected, so repeated or late room notifications never reset
// or rewind a running question.
func (c *Controller) EnterQuestion(index int, question domain.Question) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < c.index || (c.active && c.index == index) {
		return false
	}
	c.active = true
	c.index = index
	c.question = question
	c.remaining = c.base + c.pendingBonus
	c.pendingBonus = 0
	c.submission = NotAnswered
	c.selected = -1
	c.confusedUntil = time.Time{}
	return true
}

// Stop ends the current question without submitting, e.g. when the room finishes.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// Tick advances the countdown one unit. When it reaches zero without an answer, "no answer"
// is submitted and its result returned.
func (c *Controller) Tick(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if !c.active || c.submission != NotAnswered || c.holds > 0 {
		c.mu.Unlock()
		return nil, nil
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		c.mu.Unlock()
		return nil, nil
	}
	c.submission = TimedOut
	c.boost = 0
	result := Result{
		QuestionIndex: c.index,
		QuestionID:    c.question.ID,
		Selected:      -1,
		TimeUsedMs:    c.base * int(c.unit.Milliseconds()),
	}
	c.mu.Unlock()

	// A failed timeout submission is not retried; the question stays locked.
	return c.submit(ctx, result)
}

// Select submits option for the current question.
func (c *Controller) Select(ctx context.Context, option int) (Result, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return Result{}, domain.ErrNoActiveQuestion
	}
	if c.submission != NotAnswered {
		c.mu.Unlock()
		return Result{}, domain.ErrAnswerLocked
	}
	if option < 0 || option >= domain.OptionCount {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("option %d out of range", option)
	}
	c.submission = Answered
	c.selected = option
	used := c.base - c.remaining
	if used < 0 {
		used = 0
	}
	isCorrect := option == c.question.Content.CorrectIndex
	timeUsedMs := used * int(c.unit.Milliseconds())
	points := Score(isCorrect, timeUsedMs)
	boost := c.boost
	if boost > 1 {
		points *= boost
	}
	c.boost = 0
	result := Result{
		QuestionIndex: c.index,
		QuestionID:    c.question.ID,
		Selected:      option,
		IsCorrect:     isCorrect,
		TimeUsedMs:    timeUsedMs,
		Points:        points,
	}
	c.mu.Unlock()

	res, err := c.submit(ctx, result)
	if err != nil {
		// Let the player re-trigger the answer; nothing was recorded.
		c.mu.Lock()
		if c.active && c.index == result.QuestionIndex && c.submission == Answered {
			c.submission = NotAnswered
			c.selected = -1
			if boost > c.boost {
				c.boost = boost
			}
		}
		c.mu.Unlock()
		return Result{}, err
	}
	return *res, nil
}

func (c *Controller) submit(ctx context.Context, result Result) (*Result, error) {
	outcome, err := c.submitter.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID:   c.playerID,
		QuestionID: result.QuestionID,
		IsCorrect:  result.IsCorrect,
		TimeUsedMs: result.TimeUsedMs,
		Points:     result.Points,
	})
	if err != nil {
		c.logger.Error("submit answer", "question_index", result.QuestionIndex, "error", err)
		return nil, fmt.Errorf("submit answer: %w", err)
	}
	result.Outcome = outcome
	return &result, nil
}

// CanExtend reports whether a time extension would currently have an effect.
func (c *Controller) CanExtend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.active || c.submission == NotAnswered
}

// HoldExtend pauses the countdown while a time extension is being paid for, so the question
// cannot time out between the spend and ExtendTime. It fails with domain.ErrAnswerLocked once
// the question is locked. Every successful hold must be released with ReleaseExtend.
func (c *Controller) HoldExtend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active && c.submission != NotAnswered {
		return domain.ErrAnswerLocked
	}
	c.holds++
	return nil
}

func (c *Controller) ReleaseExtend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holds > 0 {
		c.holds--
	}
}

// ExtendTime adds units to the running countdown, or banks them for the next question when
// none is running. Once the question is locked it fails with domain.ErrAnswerLocked.
func (c *Controller) ExtendTime(units int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.pendingBonus += units
		return nil
	}
	if c.submission != NotAnswered {
		return domain.ErrAnswerLocked
	}
	c.remaining += units
	return nil
}

// AttackTime removes units from the running countdown, floored at zero. It never touches
// the submission lock; a countdown driven to zero times out on the next tick.
func (c *Controller) AttackTime(units int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.submission != NotAnswered {
		return
	}
	c.remaining -= units
	if c.remaining < 0 {
		c.remaining = 0
	}
}

func (c *Controller) ClearDebuffs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confusedUntil = time.Time{}
}

func (c *Controller) Confuse(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if until.After(c.confusedUntil) {
		c.confusedUntil = until
	}
}

// ArmScoreBoost multiplies the points of the next submission.
func (c *Controller) ArmScoreBoost(multiplier int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if multiplier > c.boost {
		c.boost = multiplier
	}
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Active:        c.active,
		QuestionIndex: c.index,
		QuestionID:    c.question.ID,
		Remaining:     c.remaining,
		Submission:    c.submission,
		Selected:      c.selected,
		Confused:      c.now().Before(c.confusedUntil),
		BoostArmed:    c.boost > 1,
		PendingBonus:  c.pendingBonus,
	}
}

// Run ticks the countdown every time unit until ctx is done. Timeout submissions are
// reported through onTimeout.
func (c *Controller) Run(ctx context.Context, onTimeout func(Result, error)) error {
	ticker := time.NewTicker(c.unit)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := c.Tick(ctx)
			if onTimeout == nil {
				continue
			}
			if err != nil {
				onTimeout(Result{}, err)
			} else if res != nil {
				onTimeout(*res, nil)
			}
		}
	}
}
