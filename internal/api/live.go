package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/salescoach/internal/budget"
	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/observe"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// Live session modes.
const (
	LiveModeFree   = "free"
	LiveModeChoice = "choice"
)

// Client message types.
const (
	LiveMessage = "message"
	LiveChoice  = "choice"
	LiveEnd     = "end"
)

// Server event types.
const (
	EventReply    = "reply"
	EventTurn     = "turn"
	EventAnalysis = "analysis"
	EventError    = "error"
)

const (
	liveReadLimit    = 64 << 10
	liveWriteTimeout = 10 * time.Second
)

// LiveRequest is a message sent by the seller during a live session.
type LiveRequest struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// LiveEvent is a message sent by the server during a live session.
type LiveEvent struct {
	Type     string           `json:"type"`
	Provider coach.ProviderID `json:"provider,omitempty"`

	// Text is the client's reply in free mode.
	Text string `json:"text,omitempty"`

	// Turn is the next multiple-choice turn. Chosen echoes the option the
	// seller picked, including whether it was correct and why.
	Turn   *coach.RolePlayTurn   `json:"turn,omitempty"`
	Chosen *coach.RolePlayOption `json:"chosen,omitempty"`

	Analysis *coach.RolePlayAnalysisResult `json:"analysis,omitempty"`

	TokenUsage    *llm.Usage            `json:"tokenUsage,omitempty"`
	Notifications []budget.Notification `json:"notifications,omitempty"`

	Error *ErrorBody `json:"error,omitempty"`
}

// liveSession is the server-held state of one live role-play.
type liveSession struct {
	srv      *Server
	conn     *websocket.Conn
	provider coach.ProviderID
	profile  string
	product  string
	choice   bool

	history []coach.ChatMessage
	options []coach.RolePlayOption
}

// Live runs a role-play over a websocket. The server keeps the conversation
// so clients only send the seller's lines.
//
// Query parameters: provider, profile (persona name or free description),
// product and mode ("free" or "choice"). In choice mode the server opens with
// a client turn and the seller answers with {"type":"choice","index":n}; in
// free mode the seller speaks first with {"type":"message","text":...}.
// {"type":"end"} requests the session analysis, which is saved to history,
// and closes the connection.
//
// A failed call is reported as an error event and the seller's line is
// discarded so it can be sent again.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sess := &liveSession{
		srv:      s,
		provider: providerOf(r, coach.ProviderID(q.Get("provider"))),
		profile:  strings.TrimSpace(q.Get("profile")),
		product:  strings.TrimSpace(q.Get("product")),
	}
	switch mode := q.Get("mode"); mode {
	case "", LiveModeFree:
	case LiveModeChoice:
		sess.choice = true
	default:
		s.respondError(w, r, badRequest(fmt.Sprintf("mode %q is invalid; valid values: free, choice", mode)))
		return
	}
	if sess.profile == "" || sess.product == "" {
		s.respondError(w, r, badRequest("profile and product are required"))
		return
	}

	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Debug("api: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(liveReadLimit)
	sess.conn = conn

	ctx := r.Context()
	if s.metrics != nil {
		s.metrics.ActiveRolePlays.Add(ctx, 1)
		defer s.metrics.ActiveRolePlays.Add(context.WithoutCancel(ctx), -1)
	}
	log := s.log.With(
		"correlation_id", observe.CorrelationID(ctx),
		"provider", string(sess.provider),
		"choice", sess.choice,
	)
	log.Info("live role-play started")

	if err := sess.run(ctx); err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
			log.Info("live role-play ended by client", "turns", len(sess.history))
			return
		}
		log.Warn("live role-play aborted", "err", err)
		conn.Close(websocket.StatusInternalError, "session error")
		return
	}
	log.Info("live role-play finished", "turns", len(sess.history))
	conn.Close(websocket.StatusNormalClosure, "session analysed")
}

// acceptOptions derives websocket origin checks from the CORS origins.
func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if len(s.origins) == 0 || slices.Contains(s.origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(s.origins))
	for _, o := range s.origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// run serves the session until the analysis is delivered or the connection
// fails. It returns nil only after a successful analysis.
func (ls *liveSession) run(ctx context.Context) error {
	if ls.choice {
		if err := ls.nextTurn(ctx, nil); err != nil {
			return err
		}
	}
	for {
		var req LiveRequest
		if err := wsjson.Read(ctx, ls.conn, &req); err != nil {
			return err
		}
		var err error
		switch req.Type {
		case LiveMessage:
			err = ls.message(ctx, req.Text)
		case LiveChoice:
			err = ls.pick(ctx, req.Index)
		case LiveEnd:
			done, endErr := ls.end(ctx)
			if done || endErr != nil {
				return endErr
			}
		default:
			err = ls.fail(ctx, badRequest(fmt.Sprintf("message type %q is invalid; valid values: message, choice, end", req.Type)))
		}
		if err != nil {
			return err
		}
	}
}

func (ls *liveSession) message(ctx context.Context, text string) error {
	if ls.choice {
		return ls.fail(ctx, badRequest("choice sessions answer with a choice message"))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ls.fail(ctx, badRequest("text is required"))
	}
	ls.history = append(ls.history, coach.ChatMessage{Role: coach.ChatRoleUser, Text: text, Timestamp: time.Now().UnixMilli()})

	out, err := ls.srv.svc.RolePlayReply(ctx, ls.provider, ls.history, ls.profile, ls.product)
	if err != nil {
		ls.history = ls.history[:len(ls.history)-1]
		return ls.fail(ctx, err)
	}
	ls.history = append(ls.history, coach.ChatMessage{Role: coach.ChatRoleModel, Text: out.Result, Timestamp: time.Now().UnixMilli()})
	return ls.send(ctx, LiveEvent{
		Type:          EventReply,
		Provider:      out.Provider,
		Text:          out.Result,
		TokenUsage:    &out.TokenUsage,
		Notifications: out.Notifications,
	})
}

func (ls *liveSession) pick(ctx context.Context, index *int) error {
	if !ls.choice {
		return ls.fail(ctx, badRequest("free sessions answer with a message"))
	}
	if len(ls.options) == 0 {
		return ls.fail(ctx, badRequest("no options are pending"))
	}
	if index == nil || *index < 0 || *index >= len(ls.options) {
		return ls.fail(ctx, badRequest(fmt.Sprintf("index must be between 0 and %d", len(ls.options)-1)))
	}
	chosen := ls.options[*index]
	correct := chosen.IsCorrect
	ls.history = append(ls.history, coach.ChatMessage{
		Role:       coach.ChatRoleUser,
		Text:       chosen.Text,
		Timestamp:  time.Now().UnixMilli(),
		WasCorrect: &correct,
	})
	return ls.nextTurn(ctx, &chosen)
}

// nextTurn requests a multiple-choice turn for the current history. On
// failure the last seller line is discarded and the pending options stay.
func (ls *liveSession) nextTurn(ctx context.Context, chosen *coach.RolePlayOption) error {
	out, err := ls.srv.svc.RolePlayTurn(ctx, ls.provider, ls.history, ls.profile, ls.product)
	if err != nil {
		if chosen != nil {
			ls.history = ls.history[:len(ls.history)-1]
		}
		if sendErr := ls.fail(ctx, err); sendErr != nil {
			return sendErr
		}
		if chosen == nil {
			// Without an opening turn there is nothing to answer.
			return err
		}
		return nil
	}
	ls.options = out.Result.Options
	ls.history = append(ls.history, coach.ChatMessage{Role: coach.ChatRoleModel, Text: out.Result.ClientResponse, Timestamp: time.Now().UnixMilli()})
	return ls.send(ctx, LiveEvent{
		Type:          EventTurn,
		Provider:      out.Provider,
		Turn:          out.Result,
		Chosen:        chosen,
		TokenUsage:    &out.TokenUsage,
		Notifications: out.Notifications,
	})
}

// end analyses the conversation. done reports whether the session is over.
func (ls *liveSession) end(ctx context.Context) (done bool, err error) {
	if !slices.ContainsFunc(ls.history, func(m coach.ChatMessage) bool { return m.Role == coach.ChatRoleUser }) {
		return false, ls.fail(ctx, badRequest("nothing to analyse yet"))
	}
	out, err := ls.srv.svc.AnalyzeRolePlay(ctx, ls.provider, ls.history, ls.profile, ls.product)
	if err != nil {
		return false, ls.fail(ctx, err)
	}
	return true, ls.send(ctx, LiveEvent{
		Type:          EventAnalysis,
		Provider:      out.Provider,
		Analysis:      out.Result,
		TokenUsage:    &out.TokenUsage,
		Notifications: out.Notifications,
	})
}

// fail reports err to the client without ending the session.
func (ls *liveSession) fail(ctx context.Context, err error) error {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(ctx).Warn("api: live role-play call failed", "status", status, "kind", body.Kind, "err", err)
	}
	return ls.send(ctx, LiveEvent{Type: EventError, Error: &body})
}

func (ls *liveSession) send(ctx context.Context, ev LiveEvent) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ls.conn, ev)
}
