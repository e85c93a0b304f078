package domain

import "errors"

var (
	// ErrQuizSetNotFound indicates the referenced quiz set does not exist.
	ErrQuizSetNotFound = errors.New("quiz set not found")
	// ErrQuestionNotFound indicates the referenced question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrGameNotFound indicates the game session does not exist.
	ErrGameNotFound = errors.New("game not found")
	// ErrNicknameTaken is returned when (game, nickname) is already claimed.
	ErrNicknameTaken = errors.New("nickname already taken in this game")
	// ErrNicknameInvalid is returned for empty or over-long nicknames.
	ErrNicknameInvalid = errors.New("nickname must be 1-20 characters")
	// ErrNameRequired is returned when a quiz set is created without a name.
	ErrNameRequired = errors.New("quiz set name is required")
	// ErrUnknownPhase is returned for a phase value outside the known set.
	ErrUnknownPhase = errors.New("unknown game phase")
	// ErrPhaseRegression is returned when a transition would move a game to
	// an earlier phase than the one it is in.
	ErrPhaseRegression = errors.New("game phase cannot move backwards")
	// ErrCorrectChoiceRequired is returned by the authoring path when a
	// question does not have exactly one correct choice.
	ErrCorrectChoiceRequired = errors.New("question needs exactly one correct choice")
)

// StoreError wraps a storage failure with the operation that produced it and
// whether the caller may reasonably retry. Constraint violations are never
// retryable; transport failures are.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a storage failure the caller may retry.
func Retryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
