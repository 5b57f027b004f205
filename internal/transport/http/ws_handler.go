package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"license-exam-service/internal/app"
	"license-exam-service/internal/domain"
)

// touchEvery is how many countdown seconds pass between liveness refreshes.
const touchEvery = 30

type WSHandler struct {
	service  *app.ExamService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.ExamService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID domain.QuestionID `json:"questionId"`
	OptionID   domain.OptionID   `json:"optionId"`
}

type flagPayload struct {
	QuestionID domain.QuestionID `json:"questionId"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type openedPayload struct {
	AttemptID       string `json:"attemptId"`
	QuestionSetID   string `json:"questionSetId"`
	Title           string `json:"title"`
	QuestionCount   int    `json:"questionCount"`
	DurationSeconds int    `json:"durationSeconds"`
	PassThreshold   int    `json:"passThreshold"`
	MaxAttempts     int    `json:"maxAttempts"`
}

// questionView is a question as the candidate sees it, without the answer key.
type questionView struct {
	Index    int               `json:"index"`
	ID       domain.QuestionID `json:"id"`
	Prompt   string            `json:"prompt"`
	Category domain.Category   `json:"category"`
	Options  []domain.Option   `json:"options"`
	Selected domain.OptionID   `json:"selected,omitempty"`
}

type statePayload struct {
	app.Snapshot
	Question *questionView `json:"question,omitempty"`
}

type tickPayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type completedPayload struct {
	Record   domain.AttemptRecord `json:"record"`
	Guidance domain.Guidance      `json:"guidance"`
}

// ServeWS upgrades HTTP requests to websockets and runs one exam attempt per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	setID := r.URL.Query().Get("setId")
	candidateID := r.URL.Query().Get("candidateId")
	if setID == "" || candidateID == "" {
		http.Error(w, "missing setId or candidateId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	session, err := h.service.Open(r.Context(), candidateID, setID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	attemptID := session.ID()
	log := h.log.With().Str("attempt_id", attemptID).Str("candidate_id", candidateID).Logger()
	defer h.service.Close(attemptID)

	events, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	cfg := h.service.Config()
	set := session.QuestionSet()
	send <- outboundMessage[any]{Type: "opened", Payload: openedPayload{
		AttemptID:       attemptID,
		QuestionSetID:   set.ID,
		Title:           set.Title,
		QuestionCount:   set.Len(),
		DurationSeconds: cfg.DurationSeconds,
		PassThreshold:   cfg.PassThreshold,
		MaxAttempts:     cfg.MaxAttempts,
	}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Kind == app.EventTick && ev.RemainingSeconds%touchEvery == 0 {
					h.touch(attemptID, log)
				}
				select {
				case send <- h.eventMessage(session, ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.touch(attemptID, log)
		if msg, ok := h.dispatch(r.Context(), session, inbound); ok {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) touch(attemptID string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.service.Touch(ctx, attemptID); err != nil {
		log.Debug().Err(err).Msg("refresh attempt liveness")
	}
}

// dispatch applies one inbound command. State changes reach the client through
// the session subscription, so only errors and explicit state requests reply here.
func (h *WSHandler) dispatch(ctx context.Context, session *app.Session, inbound inboundMessage) (outboundMessage[any], bool) {
	var err error
	switch inbound.Type {
	case "start":
		_, err = h.service.Start(ctx, session.ID())
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return badRequest("invalid answer payload"), true
		}
		err = session.Answer(payload.QuestionID, payload.OptionID)
	case "flag":
		var payload flagPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return badRequest("invalid flag payload"), true
		}
		_, err = session.ToggleFlag(payload.QuestionID)
	case "next":
		_, err = session.Next()
	case "previous":
		_, err = session.Previous()
	case "goto":
		var payload gotoPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return badRequest("invalid goto payload"), true
		}
		_, err = session.GoTo(payload.Index)
	case "review":
		err = session.EnterReview()
	case "pause":
		err = session.Pause()
	case "resume":
		err = session.Resume()
	case "submit":
		_, err = session.Submit()
	case "state":
		return stateMessage(session), true
	default:
		return badRequest("unsupported message type"), true
	}
	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage[any]{}, false
}

func (h *WSHandler) eventMessage(session *app.Session, ev app.Event) outboundMessage[any] {
	switch ev.Kind {
	case app.EventTick:
		return outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingSeconds: ev.RemainingSeconds}}
	case app.EventCompleted:
		record, guidance, err := h.service.Outcome(session.ID())
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "completed", Payload: completedPayload{Record: record, Guidance: guidance}}
	default:
		return stateMessage(session)
	}
}

func stateMessage(session *app.Session) outboundMessage[any] {
	payload := statePayload{Snapshot: session.Snapshot()}
	switch session.State().(type) {
	case domain.InProgress, domain.Review:
		idx, q := session.CurrentQuestion()
		payload.Question = &questionView{
			Index:    idx,
			ID:       q.ID,
			Prompt:   q.Prompt,
			Category: q.Category,
			Options:  q.Options,
			Selected: session.Answers()[q.ID],
		}
	}
	return outboundMessage[any]{Type: "state", Payload: payload}
}

func badRequest(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: message}}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrInvalidSelection):
		return "invalid_selection"
	case errors.Is(err, domain.ErrInvalidNavigation):
		return "invalid_navigation"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrQuestionSetNotFound):
		return "question_set_not_found"
	case errors.Is(err, domain.ErrNoAttemptsRemaining):
		return "no_attempts_remaining"
	case errors.Is(err, domain.ErrCooldownActive):
		return "cooldown_active"
	default:
		return "internal"
	}
}
