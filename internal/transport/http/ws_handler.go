package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
)

// WSHandler serves the host and player sockets. Both views are driven by the
// change feed: phase changes and participant registrations arrive as events
// and each delivery replaces the local view wholesale.
type WSHandler struct {
	store    app.Store
	games    *app.GameService
	content  *app.ContentService
	upgrader websocket.Upgrader
}

func NewWSHandler(store app.Store, games *app.GameService, content *app.ContentService) *WSHandler {
	return &WSHandler{
		store:   store,
		games:   games,
		content: content,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type advancePayload struct {
	Phase domain.Phase `json:"phase"`
}

type joinPayload struct {
	Nickname string `json:"nickname"`
}

type gamePayload struct {
	Game     domain.Game `json:"game"`
	JoinPath string      `json:"joinPath,omitempty"`
}

type statePayload struct {
	State string `json:"state"`
}

// ServeHost is the host's view of one game: it observes registrations and
// phase changes and accepts advance commands. Authorization of the host is
// the deployment's concern; whoever reaches this endpoint drives the game.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, "missing gameId", http.StatusBadRequest)
		return
	}
	game, err := h.games.Get(r.Context(), gameID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send, closeSend := startWriter(conn)
	defer closeSend()

	send <- outboundMessage[any]{Type: "game", Payload: gamePayload{Game: game, JoinPath: h.games.JoinPath(gameID)}}
	if participants, err := h.store.ListParticipants(r.Context(), gameID); err == nil {
		send <- outboundMessage[any]{Type: "participants", Payload: participants}
	}

	phaseSub, err := h.games.WatchPhase(r.Context(), gameID, func(g domain.Game) {
		trySend(send, outboundMessage[any]{Type: "phase", Payload: gamePayload{Game: g}})
	})
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errPayload(err)}
		return
	}
	defer phaseSub.Close()

	participantSub, err := h.games.WatchParticipants(r.Context(), gameID, func(list []domain.Participant) {
		trySend(send, outboundMessage[any]{Type: "participants", Payload: list})
	})
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errPayload(err)}
		return
	}
	defer participantSub.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "advance":
			var payload advancePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				trySend(send, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid advance payload"}})
				continue
			}
			// The new phase reaches this host through its own phase
			// subscription, like every other observer.
			if _, err := h.games.AdvancePhase(r.Context(), gameID, payload.Phase); err != nil {
				trySend(send, outboundMessage[any]{Type: "error", Payload: errPayload(err)})
			}
		default:
			trySend(send, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

// ServePlay is a participant's view of one game. The join protocol runs over
// messages: an optional nickname query resolves a rejoin on connect, and
// "join" messages claim a nickname. A losing race gets an error and stays
// joinable with a different nickname.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, "missing gameId", http.StatusBadRequest)
		return
	}
	game, err := h.games.Get(r.Context(), gameID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send, closeSend := startWriter(conn)
	defer closeSend()

	send <- outboundMessage[any]{Type: "game", Payload: gamePayload{Game: game}}

	registration := app.NewRegistration(h.store, gameID)
	if nickname := r.URL.Query().Get("nickname"); nickname != "" {
		if existing, err := registration.Resolve(r.Context(), nickname); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errPayload(err)}
		} else if existing != nil {
			send <- outboundMessage[any]{Type: "registered", Payload: existing}
		}
	}
	send <- outboundMessage[any]{Type: "registration", Payload: statePayload{State: registration.State().String()}}

	phaseSub, err := h.games.WatchPhase(r.Context(), gameID, func(g domain.Game) {
		trySend(send, outboundMessage[any]{Type: "phase", Payload: gamePayload{Game: g}})
		if g.Phase == domain.PhaseQuiz {
			if content, err := h.content.Content(r.Context(), g.QuizSetID); err == nil {
				trySend(send, outboundMessage[any]{Type: "content", Payload: playerView(content)})
			}
		}
	})
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errPayload(err)}
		return
	}
	defer phaseSub.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "join":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				trySend(send, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid join payload"}})
				continue
			}
			participant, err := registration.Submit(r.Context(), payload.Nickname)
			if err != nil {
				trySend(send, outboundMessage[any]{Type: "error", Payload: errPayload(err)})
				trySend(send, outboundMessage[any]{Type: "registration", Payload: statePayload{State: registration.State().String()}})
				continue
			}
			trySend(send, outboundMessage[any]{Type: "registered", Payload: participant})
		default:
			trySend(send, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

// startWriter serializes all socket writes through one goroutine. The
// returned close function stops the writer and must run before the handler
// returns. The writer exits on its first write error without draining, so
// feed callbacks and the read loops send through trySend, which drops
// instead of blocking once the writer is gone.
func startWriter(conn *websocket.Conn) (chan outboundMessage[any], func()) {
	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()
	var closed bool
	return send, func() {
		if closed {
			return
		}
		closed = true
		close(send)
		<-done
	}
}

// trySend delivers without blocking on a slow or torn-down socket.
func trySend(send chan outboundMessage[any], msg outboundMessage[any]) {
	defer func() {
		// the send channel can close while a feed callback is in flight;
		// results for a torn-down view are discarded
		_ = recover()
	}()
	select {
	case send <- msg:
	default:
	}
}

// playerView strips correctness flags before content reaches participants.
func playerView(content domain.QuizContent) domain.QuizContent {
	questions := make([]domain.ContentQuestion, len(content.Questions))
	for i, q := range content.Questions {
		choices := make([]domain.Choice, len(q.Choices))
		for j, c := range q.Choices {
			c.IsCorrect = false
			choices[j] = c
		}
		questions[i] = domain.ContentQuestion{Question: q.Question, Choices: choices}
	}
	return domain.QuizContent{Set: content.Set, Questions: questions}
}

func errPayload(err error) errorPayload {
	return errorPayload{Message: err.Error(), Retryable: domain.Retryable(err)}
}
