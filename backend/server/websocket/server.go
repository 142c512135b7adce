package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/adwski/roomchat/backend/model"
	"github.com/adwski/roomchat/backend/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 9000
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	defaultOutboxSize = 256

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
	ErrHandshake  = errors.New("not a websocket handshake")
	ErrOrigin     = errors.New("origin not allowed")
)

type (
	ChatService interface {
		Connect(model.Identity, model.Wire) (*service.Session, error)
		Disconnect(*service.Session) error
		Handle(*service.Session, model.Action) error
	}

	Config struct {
		Logger         *zerolog.Logger
		ChatService    ChatService
		ListenAddr     string
		AllowedOrigins []string
		OutboxSize     int
		MaxMessageSize int64
	}

	Server struct {
		svc ChatService
		ws  *websocket.Upgrader
		*http.Server

		logger         zerolog.Logger
		outboxSize     int
		maxMessageSize int64
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:         cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:            cfg.ChatService,
		outboxSize:     cfg.OutboxSize,
		maxMessageSize: cfg.MaxMessageSize,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      checkOrigin(cfg.AllowedOrigins),
		},
	}
	if srv.outboxSize <= 0 {
		srv.outboxSize = defaultOutboxSize
	}
	if srv.maxMessageSize <= 0 {
		srv.maxMessageSize = defaultWebSocketMaxMessageSize
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Mux(),
	}
	return srv
}

// Mux returns the chat endpoint mux.
func (srv *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", srv.chat)
	return mux
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

// checkHandshake rejects requests the upgrader would refuse,
// so that they never reach the chat service.
func (srv *Server) checkHandshake(r *http.Request) (int, error) {
	switch {
	case r.Method != http.MethodGet:
		return http.StatusMethodNotAllowed, ErrHandshake
	case !websocket.IsWebSocketUpgrade(r),
		r.Header.Get("Sec-Websocket-Version") != "13",
		r.Header.Get("Sec-Websocket-Key") == "":
		return http.StatusBadRequest, ErrHandshake
	case !srv.ws.CheckOrigin(r):
		return http.StatusForbidden, ErrOrigin
	}
	return http.StatusOK, nil
}

func (srv *Server) chat(w http.ResponseWriter, r *http.Request) {
	if code, err := srv.checkHandshake(r); err != nil {
		srv.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("chat request rejected")
		http.Error(w, err.Error(), code)
		return
	}

	identity := r.URL.Query().Get("username")
	if identity == "" {
		identity = service.GuestIdentity(time.Now())
	}
	logger := srv.logger.With().
		Str("connID", uuid.NewString()).
		Str("identity", identity).
		Logger()

	wire := model.NewWire(srv.outboxSize)
	session, err := srv.svc.Connect(identity, wire)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create chat session")
		switch {
		case errors.Is(err, service.ErrIdentityConflict):
			w.WriteHeader(http.StatusConflict)
		case errors.Is(err, service.ErrInvalidIdentity):
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already replied
		logger.Error().Err(err).Msg("websocket upgrade failed")
		srv.destroySession(session, &logger)
		return
	}
	logger.Debug().Msg("chat session created")

	// the server's lifetime is not tied to request context
	ctx, cancel := context.WithCancel(context.Background())
	go srv.handleWSConn(ctx, cancel, conn, session, wire, &logger)
}

func (srv *Server) destroySession(session *service.Session, logger *zerolog.Logger) {
	if err := srv.svc.Disconnect(session); err != nil {
		logger.Error().Err(err).Msg("failed to delete chat session")
		return
	}
	logger.Debug().Msg("chat session ended")
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	session *service.Session,
	wire model.Wire,
	logger *zerolog.Logger,
) {
	wg := &sync.WaitGroup{}

	wg.Add(2)
	go func() {
		srv.webSocketReceiver(ctx, wg, conn, session, logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, wire.TX, logger)
		cancel()
	}()

	wg.Wait()
	webSocketCloser(conn, logger)
	srv.destroySession(session, logger)
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Event,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case ev, ok := <-tx:
			if !ok {
				break SendLoop
			}

			b, wsErr := json.Marshal(&ev)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to marshall outgoing event")
				break SendLoop
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = conn.WriteMessage(websocket.TextMessage, b); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing event")
				break SendLoop
			}
		}
	}
}

// webSocketReceiver is the session's actor: actions are handled one by one in arrival order.
func (srv *Server) webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	session *service.Session,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(srv.maxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}
			logger.Trace().Bytes("frame", msg).Msg("got frame")

			var action model.Action
			if wsErr = json.Unmarshal(msg, &action); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to unmarshall incoming action")
				continue
			}
			if err = srv.svc.Handle(session, action); err != nil {
				if errors.Is(err, service.ErrUsage) {
					logger.Error().Err(err).Msg("session is gone")
					break RecvLoop
				}
				logger.Warn().Err(err).Str("action", action.Action).Msg("action rejected")
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to close websocket connection")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
