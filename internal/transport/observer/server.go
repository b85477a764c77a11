package observer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxlayer.ai/internal/observerproto"
	"voxlayer.ai/internal/sim/editor"
	"voxlayer.ai/internal/sim/encoding"
	"voxlayer.ai/internal/sim/logic/mathx"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
)

type Server struct {
	ed      *editor.Editor
	layerID string
	limits  tuning.ObserverLimits
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(ed *editor.Editor, layerID string, limits tuning.ObserverLimits, logger *log.Logger) *Server {
	return &Server{
		ed:      ed,
		layerID: layerID,
		limits:  limits,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see handlers
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		meta := s.ed.Meta()
		st := s.ed.Stats()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			LayerID:         s.layerID,
			Seq:             st.Seq,
			LayerParams: observerproto.LayerParams{
				Name:      meta.Name,
				Origin:    meta.Origin,
				Extent:    meta.Extent,
				Blend:     meta.Blend.String(),
				ChunkSize: voxel.Size,
				Chunks:    st.Chunks,
				Solids:    st.Solids,
			},
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		s.normalizeSubscribe(&sub)

		sid := uuid.NewString()
		// Subscribe before the initial sync so no edit falls between the two.
		updates, unsubscribe := s.ed.Subscribe(s.limits.UpdateBuffer)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, s.limits.SendQueue)
		writeTimeout := time.Duration(s.limits.WriteTimeoutMs) * time.Millisecond

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader goroutine: SUBSCRIBE updates restart the sync.
		resub := make(chan observerproto.SubscribeMsg, 1)
		go func() {
			defer cancel()
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				next, ok := parseSubscribe(msg)
				if !ok {
					continue
				}
				s.normalizeSubscribe(&next)
				select {
				case resub <- next:
				default:
					// Drop updates under load; the client may resend.
				}
			}
		}()

		s.log.Printf("observer %s: subscribed max_chunks=%d radius=%d", sid, sub.MaxChunks, sub.ChunkRadius)
		defer s.log.Printf("observer %s: closed", sid)

		sess := &session{id: sid, sub: sub, sent: map[voxel.ChunkKey]bool{}}
		send := func(v any) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return false
			}
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !sess.sync(s.ed, send) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-resub:
				sess.reset(next)
				if !sess.sync(s.ed, send) {
					return
				}
			case k, ok := <-updates:
				if !ok {
					return
				}
				if !sess.update(s.ed, k, send) {
					return
				}
			}
		}
	}
}

// session tracks which chunks one observer holds.
type session struct {
	id   string
	sub  observerproto.SubscribeMsg
	sent map[voxel.ChunkKey]bool
}

func (ss *session) reset(sub observerproto.SubscribeMsg) {
	ss.sub = sub
	ss.sent = map[voxel.ChunkKey]bool{}
}

func (ss *session) wants(k voxel.ChunkKey) bool {
	if ss.sub.Focus == nil || ss.sub.ChunkRadius <= 0 {
		return true
	}
	f := ss.sub.Focus
	c := [3]int32{mathx.ChunkOf(f[0]), mathx.ChunkOf(f[1]), mathx.ChunkOf(f[2])}
	r := int64(ss.sub.ChunkRadius)
	return abs64(int64(k.X)-int64(c[0])) <= r &&
		abs64(int64(k.Y)-int64(c[1])) <= r &&
		abs64(int64(k.Z)-int64(c[2])) <= r
}

// sync sends every wanted resident chunk up to the limit, then SYNCED, on a
// fresh or reset session. Clients drop their cache when SYNCED follows a
// re-subscribe.
func (ss *session) sync(ed *editor.Editor, send func(any) bool) bool {
	views, truncated := ed.SelectChunkViews(ss.wants, ss.sub.MaxChunks)
	for _, v := range views {
		if !send(ChunkFrame(v)) {
			return false
		}
		ss.sent[v.Key] = true
	}
	return send(observerproto.SyncedMsg{
		Type:            observerproto.TypeSynced,
		ProtocolVersion: observerproto.Version,
		SessionID:       ss.id,
		Chunks:          len(ss.sent),
		Truncated:       truncated,
	})
}

func (ss *session) update(ed *editor.Editor, k voxel.ChunkKey, send func(any) bool) bool {
	if !ss.wants(k) {
		return true
	}
	v, ok := ed.ChunkView(k)
	if !ok {
		if !ss.sent[k] {
			return true
		}
		delete(ss.sent, k)
		return send(observerproto.ChunkGoneMsg{
			Type:            observerproto.TypeChunkGone,
			ProtocolVersion: observerproto.Version,
			Key:             [3]int32{k.X, k.Y, k.Z},
		})
	}
	if !ss.sent[k] && len(ss.sent) >= ss.sub.MaxChunks {
		return true
	}
	ss.sent[k] = true
	return send(ChunkFrame(v))
}

// ChunkFrame encodes one chunk view as a CHUNK message.
func ChunkFrame(v editor.ChunkView) observerproto.ChunkMsg {
	return observerproto.ChunkMsg{
		Type:            observerproto.TypeChunk,
		ProtocolVersion: observerproto.Version,
		Key:             [3]int32{v.Key.X, v.Key.Y, v.Key.Z},
		Count:           len(v.Colors),
		VertexEncoding:  observerproto.VertexEncoding,
		Vertices:        base64.StdEncoding.EncodeToString(v.Vertices),
		ColorEncoding:   observerproto.ColorEncoding,
		Colors:          encoding.EncodeRLE(v.Colors),
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func (s *Server) normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.MaxChunks <= 0 || sub.MaxChunks > s.limits.MaxChunks {
		sub.MaxChunks = s.limits.MaxChunks
	}
	if sub.ChunkRadius < 0 {
		sub.ChunkRadius = 0
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
