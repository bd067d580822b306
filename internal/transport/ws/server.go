package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"outpostforge.ai/internal/gen/outpost"
	"outpostforge.ai/internal/protocol"
)

// Generator is the part of outpost.Generator the endpoint needs.
type Generator interface {
	Generate(req outpost.Request) (*outpost.Outpost, error)
}

// Recorder is called with every generated outpost and returns its run id.
type Recorder func(o *outpost.Outpost) string

type Server struct {
	gen    Generator
	log    *log.Logger
	record Recorder

	upgrader websocket.Upgrader
}

type Option func(*Server)

func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.record = r }
}

func NewServer(gen Generator, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		gen: gen,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan any, 8)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case v, ok := <-out:
					if !ok {
						return
					}
					if err := writeJSON(conn, v); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.handle(msg)
			select {
			case out <- resp:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		close(out)
		<-done
	}
}

func (s *Server) handle(msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.Type != protocol.TypeGenerate {
		return protocol.NewError(base.RequestID, protocol.ErrProtoBadRequest, "expected GENERATE")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(base.RequestID, protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
	}
	gm, err := protocol.DecodeGenerate(msg)
	if err != nil {
		return protocol.NewError(base.RequestID, protocol.ErrBadRequest, err.Error())
	}

	o, err := s.gen.Generate(outpost.Request{
		Recipe:             gm.Recipe,
		Seed:               gm.Seed,
		LocationType:       gm.LocationType,
		Faction:            gm.Faction,
		CriticallyRadiated: gm.CriticallyRadiated,
		OnlyEntrance:       gm.OnlyEntrance,
	})
	if err != nil {
		code := protocol.ErrInternal
		switch {
		case errors.Is(err, outpost.ErrUnknownRecipe):
			code = protocol.ErrUnknownRecipe
		case errors.Is(err, outpost.ErrNoEntryModule):
			code = protocol.ErrNoEntryModule
		case errors.Is(err, outpost.ErrNoFallback):
			code = protocol.ErrNoFallback
		}
		s.log.Printf("warn: ws: generate recipe=%q seed=%d: %v", gm.Recipe, gm.Seed, err)
		return protocol.NewError(gm.RequestID, code, err.Error())
	}

	resp := Summary(o)
	resp.RequestID = gm.RequestID
	if s.record != nil {
		resp.RunID = s.record(o)
	}
	return resp
}

// Summary converts a generated outpost into its OUTPOST message.
func Summary(o *outpost.Outpost) protocol.OutpostMsg {
	snap := o.Snapshot("")
	m := protocol.OutpostMsg{
		Type:            protocol.TypeOutpost,
		ProtocolVersion: protocol.Version,
		Recipe:          o.Recipe,
		Seed:            o.Seed,
		LocationType:    o.LocationType,
		Digest:          o.Digest,
		Valid:           o.Valid,
		Prebuilt:        o.Prebuilt,
		Missing:         o.Missing,
		Attempts:        o.Attempts,
		Sequence:        o.Sequence,
		Entities:        map[string]int{},
	}
	for _, mod := range snap.Modules {
		m.Modules = append(m.Modules, protocol.ModuleRef{
			Node:      mod.Node,
			Template:  mod.Template,
			Parent:    mod.Parent,
			Gap:       mod.ThisGap,
			Offset:    mod.Offset,
			Fulfilled: mod.Fulfilled,
		})
	}
	for _, e := range snap.Entities {
		m.Entities[e.Kind]++
	}
	return m
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
