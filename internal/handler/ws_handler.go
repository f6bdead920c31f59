package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/backend"
	"github.com/stemsi/exstem-viva/internal/generator"
	"github.com/stemsi/exstem-viva/internal/metrics"
	"github.com/stemsi/exstem-viva/internal/middleware"
	"github.com/stemsi/exstem-viva/internal/proctor"
	"github.com/stemsi/exstem-viva/internal/response"
	"github.com/stemsi/exstem-viva/internal/validator"
	ws "github.com/stemsi/exstem-viva/internal/websocket"
)

const (
	helloWait = 10 * time.Second
	closeWait = time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamConfig holds the per-attempt settings applied to every controller.
type StreamConfig struct {
	Timing         proctor.Timing
	Threshold      int
	Progressive    bool
	HomeURL        string
	AllowedOrigins []string
}

// WSHandler runs one proctored viva attempt per WebSocket connection.
type WSHandler struct {
	client    *backend.Client
	generator *generator.Generator
	registry  *proctor.Registry
	observer  proctor.Observer
	cfg       StreamConfig
	base      zerolog.Logger
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. gen may be nil, in which case
// generation goes to the web application.
func NewWSHandler(
	client *backend.Client,
	gen *generator.Generator,
	registry *proctor.Registry,
	observer proctor.Observer,
	cfg StreamConfig,
	log zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		client:    client,
		generator: gen,
		registry:  registry,
		observer:  observer,
		cfg:       cfg,
		base:      log,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(cfg.AllowedOrigins),
	}
}

type streamQuery struct {
	ExperimentID   string `form:"experiment_id" binding:"omitempty,max=128"`
	ExperimentName string `form:"experiment_name" binding:"omitempty,max=256"`
	Topic          string `form:"topic" binding:"omitempty,max=512"`
	SessionID      string `form:"session_id" binding:"omitempty,max=128"`
	VivaSessionID  string `form:"viva_session_id" binding:"omitempty,max=128"`
}

func (q streamQuery) session(claims *middleware.Claims) proctor.SessionContext {
	sess := proctor.SessionContext{
		ExperimentID:   q.ExperimentID,
		ExperimentName: q.ExperimentName,
		Topic:          q.Topic,
		SessionID:      q.SessionID,
		VivaSessionID:  q.VivaSessionID,
	}
	if sess.Topic == "" {
		sess.Topic = sess.ExperimentName
	}
	if claims != nil {
		sess.StudentRegNo = claims.Subject
	}
	sess.AttemptID = attemptID(sess)
	return sess
}

// attemptID keys the registry: one live attempt per session and experiment.
func attemptID(sess proctor.SessionContext) string {
	if sess.SessionID == "" || sess.ExperimentID == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s:%s", sess.SessionID, sess.ExperimentID)
}

// VivaStream godoc
// WS /ws/v1/viva/stream
// Upgrades to WebSocket and drives one attempt from generation to redirect.
func (h *WSHandler) VivaStream(c *gin.Context) {
	var q streamQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	sess := q.session(middleware.GetClaims(c))
	remote := h.client.WithCredentials(credentialsOf(c.Request))

	reqLog := response.Logger(c, h.log)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		reqLog.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := reqLog.With().
		Str("attempt_id", sess.AttemptID).
		Str("session_id", sess.SessionID).
		Str("experiment_id", sess.ExperimentID).
		Logger()

	hello, err := readHello(conn)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Handshake failed")
		ws.WriteError(conn, err.Error())
		return
	}

	view := ws.NewSession(conn, *hello, wsLog)
	defer view.Close()

	var be proctor.Backend = remote
	if h.generator != nil {
		be = generator.Backend{Backend: remote, Generator: h.generator, Log: wsLog}
	}

	ctrl := proctor.New(proctor.Options{
		Session:     sess,
		Backend:     be,
		View:        view,
		Listeners:   view,
		Navigator:   view,
		Fullscreen:  view.Fullscreen(),
		Observer:    h.observer,
		Log:         h.base,
		Timing:      h.cfg.Timing,
		Threshold:   h.cfg.Threshold,
		HomeURL:     h.cfg.HomeURL,
		Progressive: h.cfg.Progressive,
	})
	if !h.registry.Add(ctrl) {
		wsLog.Warn().Msg("Attempt already running, refusing second connection")
		ws.WriteError(conn, response.GetMessage(response.ErrAttemptRunning))
		return
	}
	defer h.registry.Remove(ctrl)

	release := metrics.Connected()
	defer release()

	wsLog.Info().Bool("fullscreen", hello.Fullscreen).Bool("has_opener", hello.HasOpener).Msg("Student connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			wsLog.Error().Err(err).Msg("Attempt loop stopped")
		}
	}()
	go func() {
		select {
		case <-ctrl.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt finished")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		case <-runDone:
		}
	}()

	ctrl.Start()
	readLoop(conn, ctrl, view, wsLog)

	cancel()
	<-runDone
	wsLog.Info().Str("state", string(ctrl.Snapshot().State)).Msg("Student disconnected")
}

func readHello(conn *websocket.Conn) (*ws.HelloRequest, error) {
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	action, req, err := ws.Parse(raw)
	if err != nil {
		return nil, err
	}
	hello, ok := req.(*ws.HelloRequest)
	if !ok {
		return nil, fmt.Errorf("expected hello, got %q", action)
	}
	return hello, nil
}

// attempt is the part of *proctor.Controller the read loop drives.
type attempt interface {
	Dispatch(sig proctor.Signal)
	Answer(questionID int, letter string)
	Submit()
	Resume()
	Retry()
	Exit()
}

// replier answers the client directly from the read loop.
type replier interface {
	Pong()
	Rejected(action string, err error)
}

func readLoop(conn *websocket.Conn, a attempt, r replier, log zerolog.Logger) {
	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}
		route(raw, a, r, log)
	}
}

// route parses one frame and forwards it to the attempt.
func route(raw []byte, a attempt, r replier, log zerolog.Logger) {
	action, req, err := ws.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Msg("Rejected frame")
		r.Rejected(string(action), err)
		return
	}

	switch m := req.(type) {
	case *ws.SignalRequest:
		a.Dispatch(m.Signal())
	case *ws.AnswerRequest:
		a.Answer(m.QuestionID, m.Choice)
	case *ws.HelloRequest:
		log.Debug().Msg("Ignoring repeated hello")
	default:
		switch action {
		case ws.ActionSubmit:
			a.Submit()
		case ws.ActionResume:
			a.Resume()
		case ws.ActionRetry:
			a.Retry()
		case ws.ActionExit:
			a.Exit()
		case ws.ActionPing:
			r.Pong()
		}
	}
}

// credentialsOf forwards the learner's cookies and bearer token to the web
// application. A ?token= used for the upgrade is promoted to a header.
func credentialsOf(r *http.Request) backend.Credentials {
	creds := backend.Credentials{
		Cookies:       r.Cookies(),
		Authorization: r.Header.Get("Authorization"),
	}
	if creds.Authorization == "" {
		if tok := r.URL.Query().Get("token"); tok != "" {
			creds.Authorization = "Bearer " + tok
		}
	}
	return creds
}
