package steelsky

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// tuneMessage carries live parameter changes over the tuning websocket.
// Pointer fields distinguish "absent" from "set to zero".
type tuneMessage struct {
	TimeOfDay       *float32 `json:"timeOfDay,omitempty"`
	FogDensity      *float32 `json:"fogDensity,omitempty"`
	ScatteringCoeff *float32 `json:"scatteringCoeff,omitempty"`
	GodRayStrength  *float32 `json:"godRayStrength,omitempty"`
	GodRayDecay     *float32 `json:"godRayDecay,omitempty"`
	Atmosphere      *string  `json:"atmosphere,omitempty"`
}

// tuneState echoes the renderer's current tunables back to the client.
type tuneState struct {
	FogDensity      float32 `json:"fogDensity"`
	ScatteringCoeff float32 `json:"scatteringCoeff"`
	GodRayStrength  float32 `json:"godRayStrength"`
	GodRayDecay     float32 `json:"godRayDecay"`
	Atmosphere      string  `json:"atmosphere"`
}

// ParameterServer exposes the renderer's runtime tunables over a websocket
// so the sky and fog can be adjusted while the demo runs.
type ParameterServer struct {
	log      Logger
	renderer *Renderer
	upgrader websocket.Upgrader
	srv      *http.Server
}

func NewParameterServer(log Logger, r *Renderer, addr string) *ParameterServer {
	s := &ParameterServer{
		log:      log,
		renderer: r,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. The returned error channel yields
// the terminal ListenAndServe error.
func (s *ParameterServer) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("parameter server listening on %s", s.srv.Addr)
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *ParameterServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *ParameterServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("tuner upgrade: %v", err)
		return
	}
	defer conn.Close()
	s.log.Infof("tuner client connected from %s", r.RemoteAddr)

	if err := conn.WriteJSON(s.currentState()); err != nil {
		s.log.Warnf("tuner write: %v", err)
		return
	}

	for {
		var msg tuneMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warnf("tuner read: %v", err)
			}
			return
		}
		s.apply(msg)
		if err := conn.WriteJSON(s.currentState()); err != nil {
			s.log.Warnf("tuner write: %v", err)
			return
		}
	}
}

func (s *ParameterServer) apply(msg tuneMessage) {
	if msg.TimeOfDay != nil {
		s.renderer.UpdateSunPosition(*msg.TimeOfDay)
	}
	if msg.FogDensity != nil || msg.ScatteringCoeff != nil || msg.GodRayStrength != nil || msg.GodRayDecay != nil {
		p := s.renderer.VolumetricParams()
		if msg.FogDensity != nil {
			p.FogDensity = *msg.FogDensity
		}
		if msg.ScatteringCoeff != nil {
			p.ScatteringCoeff = *msg.ScatteringCoeff
		}
		if msg.GodRayStrength != nil {
			p.GodRayStrength = *msg.GodRayStrength
		}
		if msg.GodRayDecay != nil {
			p.GodRayDecay = *msg.GodRayDecay
		}
		s.renderer.UpdateVolumetricParameters(p.FogDensity, p.ScatteringCoeff, p.GodRayStrength, p.GodRayDecay)
	}
	if msg.Atmosphere != nil {
		t, err := ParseAtmosphereType(*msg.Atmosphere)
		if err != nil {
			s.log.Warnf("tuner: %v", err)
			return
		}
		m, err := AtmosphereByType(t)
		if err != nil {
			s.log.Warnf("tuner: %v", err)
			return
		}
		if err := s.renderer.SetAtmosphereParameters(m); err != nil {
			s.log.Warnf("tuner: %v", err)
		}
	}
}

func (s *ParameterServer) currentState() tuneState {
	p := s.renderer.VolumetricParams()
	return tuneState{
		FogDensity:      p.FogDensity,
		ScatteringCoeff: p.ScatteringCoeff,
		GodRayStrength:  p.GodRayStrength,
		GodRayDecay:     p.GodRayDecay,
		Atmosphere:      s.renderer.Atmosphere().Type.String(),
	}
}
