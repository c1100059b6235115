package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"muufin/internal/auth"
	"muufin/internal/httpx"
	"muufin/internal/jellyfin"
	"muufin/internal/logging"
	"muufin/internal/playback"
)

// Controls is the slice of the playback controller the socket drives.
type Controls interface {
	Play()
	Pause()
	Stop()
	SeekTo(positionMs int64)
	Status() playback.Status
}

type message struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data"`
}

type playstateData struct {
	Command             string `json:"Command"`
	SeekPositionTicks   *int64 `json:"SeekPositionTicks"`
	ControllingUserID   string `json:"ControllingUserId"`
	ControllingUserName string `json:"ControllingUserName"`
}

// Socket maintains the server's session websocket so other clients can
// remote-control this one. It reconnects with backoff and re-reads the
// authority snapshot on every dial, so sign-in changes take effect on the
// next attempt.
type Socket struct {
	snapshot func() auth.State
	controls Controls
	log      logging.Logger
	cancel   context.CancelFunc
}

func NewSocket(snapshot func() auth.State, controls Controls, log logging.Logger) *Socket {
	return &Socket{snapshot: snapshot, controls: controls, log: log}
}

func (s *Socket) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		retry := 2 * time.Second
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			state := s.snapshot()
			if !state.IsSignedIn() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}

			conn, err := s.dial(state)
			if err != nil {
				s.log.Warn("Session socket dial failed", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(retry):
				}
				if retry < 30*time.Second {
					retry *= 2
				}
				continue
			}
			retry = 2 * time.Second
			s.log.Info("Session socket connected")

			s.readLoop(ctx, conn)
			conn.Close()
			s.log.Info("Session socket disconnected, reconnecting")
		}
	}()
}

func (s *Socket) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Socket) dial(state auth.State) (*websocket.Conn, error) {
	u, err := url.Parse(state.BaseURL())
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket"
	q := u.Query()
	q.Set("api_key", state.AccessToken)
	q.Set("deviceId", state.DeviceID)
	u.RawQuery = q.Encode()

	dialer := &websocket.Dialer{
		HandshakeTimeout:  15 * time.Second,
		EnableCompression: true,
		TLSClientConfig:   httpx.TLSConfigFor(state, s.log),
	}
	header := http.Header{"Accept": []string{"application/json"}}

	conn, resp, err := dialer.Dial(u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-keepAlive.C:
				msg := `{"MessageType":"KeepAlive"}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("Session socket read failed", "err", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Debug("Session socket message did not parse", "err", err)
			continue
		}

		switch msg.MessageType {
		case "ForceKeepAlive", "KeepAlive":
			// Periodic writer already covers the cadence.
		case "Playstate":
			s.handlePlaystate(msg.Data)
		default:
			s.log.Debug("Session socket message ignored", "type", msg.MessageType)
		}
	}
}

func (s *Socket) handlePlaystate(data json.RawMessage) {
	var cmd playstateData
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.log.Warn("Playstate command did not parse", "err", err)
		return
	}
	s.log.Info("Remote playstate command", "command", cmd.Command, "from", cmd.ControllingUserName)

	switch cmd.Command {
	case "PlayPause":
		if s.controls.Status().Playing {
			s.controls.Pause()
		} else {
			s.controls.Play()
		}
	case "Pause":
		s.controls.Pause()
	case "Unpause":
		s.controls.Play()
	case "Stop":
		s.controls.Stop()
	case "Seek":
		if cmd.SeekPositionTicks != nil {
			s.controls.SeekTo(jellyfin.TicksToMs(*cmd.SeekPositionTicks))
		}
	default:
		s.log.Debug("Playstate command unsupported", "command", cmd.Command)
	}
}
