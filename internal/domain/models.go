package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Phase is the lifecycle stage of a game session.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseQuiz    Phase = "quiz"
	PhaseResults Phase = "results"
)

// phaseOrder defines the total order phases advance through.
var phaseOrder = []Phase{PhaseLobby, PhaseQuiz, PhaseResults}

// Rank returns the position of the phase in the advancement order, or -1 if
// the phase is unknown.
func (p Phase) Rank() int {
	for i, known := range phaseOrder {
		if p == known {
			return i
		}
	}
	return -1
}

// Valid reports whether the phase is one of the known stages.
func (p Phase) Valid() bool {
	return p.Rank() >= 0
}

// Before reports whether p is strictly earlier than other in the advancement order.
func (p Phase) Before(other Phase) bool {
	return p.Rank() < other.Rank()
}

// QuizSet is a named collection of questions authored together.
type QuizSet struct {
	bun.BaseModel `bun:"table:quiz_sets" json:"-"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Question is a single prompt within a quiz set. Order defines the
// presentation sequence within the owning set.
type Question struct {
	bun.BaseModel `bun:"table:questions" json:"-"`

	ID        string `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	QuizSetID string `bun:"quiz_set_id,notnull,type:uuid" json:"quizSetId"`
	Body      string `bun:"body,notnull" json:"body"`
	Order     int    `bun:"\"order\",notnull" json:"order"`
	ImageURL  string `bun:"image_url" json:"imageUrl,omitempty"`
}

// Choice is one answer option for a question.
type Choice struct {
	bun.BaseModel `bun:"table:choices" json:"-"`

	ID         string `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	QuestionID string `bun:"question_id,notnull,type:uuid" json:"questionId"`
	Body       string `bun:"body,notnull" json:"body"`
	IsCorrect  bool   `bun:"is_correct,notnull" json:"isCorrect"`
}

// Game is one run of a quiz set. Phase only moves forward.
type Game struct {
	bun.BaseModel `bun:"table:games" json:"-"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	QuizSetID string    `bun:"quiz_set_id,notnull,type:uuid" json:"quizSetId"`
	Phase     Phase     `bun:"phase,notnull" json:"phase"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Participant is a player identity within one game, keyed by nickname.
// Rows are immutable after creation.
type Participant struct {
	bun.BaseModel `bun:"table:participants" json:"-"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	GameID    string    `bun:"game_id,notnull,type:uuid" json:"gameId"`
	Nickname  string    `bun:"nickname,notnull" json:"nickname"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// QuizSetSummary is the dashboard listing view of a quiz set.
type QuizSetSummary struct {
	QuizSet
	QuestionCount int `json:"questionCount"`
}

// ContentQuestion is a question together with its choices.
type ContentQuestion struct {
	Question
	Choices []Choice `json:"choices"`
}

// QuizContent is the full read-side view of a quiz set, questions ordered by
// their display order.
type QuizContent struct {
	Set       QuizSet           `json:"set"`
	Questions []ContentQuestion `json:"questions"`
}
