package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/peernode/internal/adapters/http"
	"github.com/dkeye/peernode/internal/adapters/rtc"
	"github.com/dkeye/peernode/internal/app/calls"
	"github.com/dkeye/peernode/internal/app/echo"
	"github.com/dkeye/peernode/internal/app/peer"
	"github.com/dkeye/peernode/internal/config"
	"github.com/dkeye/peernode/internal/core"
	"github.com/dkeye/peernode/internal/payload"
	"github.com/dkeye/peernode/internal/telemetry"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Join the signaling server as a peer and serve the control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.String("peer-id", "", "id to register as, empty lets the server pick")
	f.String("signal-url", "ws://localhost:8080/api/ws/signal", "signaling websocket url")
	f.String("control-addr", ":8081", "control API listen address")
	f.String("codec", payload.JSON, "data payload codec (json, msgpack, cbor)")
	f.Bool("echo", false, "reflect the caller's audio back")
	f.Bool("auto-answer", false, "answer inbound calls as they arrive")
	return cmd
}

func runNode(ctx context.Context, cfg *config.Config) error {
	tp, err := telemetry.InitTracer(ctx, cfg.TelemetryEndpoint, "peernode")
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	codec, err := payload.New(cfg.Codec)
	if err != nil {
		return err
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	ep, err := rtc.NewEndpoint(dialCtx, rtc.Options{
		SignalURL:  cfg.SignalURL,
		ID:         cfg.PeerID,
		ICEServers: cfg.ICEServers,
		PortMin:    cfg.UDPPortMin,
		PortMax:    cfg.UDPPortMax,
		PingPeriod: cfg.PingPeriod,
		LogLevel:   cfg.PionLogLevel,
	})
	dialCancel()
	if err != nil {
		return err
	}

	node, err := peer.New(ep)
	if err != nil {
		_ = ep.Close()
		return err
	}
	node.Err().Subscribe(func(err error) {
		if err != nil {
			log.Error().Err(err).Str("module", "node").Msg("transport error")
		}
	})

	rt := newRuntime(ctx, node, cfg.Echo)
	node.Calls().Sessions().Subscribe(rt.onCalls)
	if cfg.AutoAnswer {
		node.Calls().Sessions().Subscribe(rt.autoAnswer)
	}

	ctl := router.NewController(node, router.ControllerOptions{
		Codec:   codec,
		Local:   rt.localStream,
		Settled: rt.settled,
		Relays:  rt.relays.Peers,
	})
	srv := &http.Server{
		Addr:    cfg.ControlAddr,
		Handler: router.SetupControlRouter(cfg, ctl),
	}

	go func() {
		log.Info().Str("addr", cfg.ControlAddr).Str("id", node.ID()).Msg("node started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	ctl.Close()
	rt.relays.StopAll()
	if err := node.Close(); err != nil {
		log.Error().Err(err).Msg("node close")
	}
	if tp != nil {
		_ = tp.Shutdown(shutdownCtx)
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

// runtime holds the per-process media policy: which local stream a call
// gets and what happens once it connects.
type runtime struct {
	ctx    context.Context
	node   *peer.Node
	relays *echo.Manager
	echo   bool

	mu        sync.Mutex
	outTracks map[string]*webrtc.TrackLocalStaticRTP
	answering map[core.MediaHandle]struct{}
	live      map[string]bool
}

func newRuntime(ctx context.Context, node *peer.Node, echoCalls bool) *runtime {
	return &runtime{
		ctx:       ctx,
		node:      node,
		relays:    echo.NewManager(),
		echo:      echoCalls,
		outTracks: make(map[string]*webrtc.TrackLocalStaticRTP),
		answering: make(map[core.MediaHandle]struct{}),
		live:      make(map[string]bool),
	}
}

// localStream returns a fresh opus stream for peer. With echo on, the
// caller's audio is written into it once the call connects.
func (rt *runtime) localStream(peer string) (core.MediaStream, error) {
	stream, track, err := rtc.NewEchoStream()
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	rt.outTracks[peer] = track
	rt.mu.Unlock()
	return stream, nil
}

func (rt *runtime) settled(p *calls.Pending) {
	s, err := p.Wait(rt.ctx)
	if err != nil {
		if !errors.Is(err, core.ErrCancelled) && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("module", "node").Str("peer", p.Peer()).Msg("call did not connect")
		}
		return
	}
	log.Info().Str("module", "node").Str("peer", s.Peer).Str("stream", s.Remote.ID()).Msg("call connected")
	if !rt.echo {
		return
	}

	rt.mu.Lock()
	track := rt.outTracks[s.Peer]
	rt.mu.Unlock()
	remote, ok := s.Remote.(*rtc.RemoteStream)
	if !ok || track == nil {
		return
	}
	audio, ok := remote.Audio()
	if !ok {
		log.Debug().Str("module", "node").Str("peer", s.Peer).Msg("no audio to echo")
		return
	}
	rt.relays.Reflect(rt.ctx, s.Peer, echo.FromTrack(audio), track)
}

// onCalls stops relays and forgets tracks of calls that ended.
func (rt *runtime) onCalls(ss []calls.Session) {
	live := make(map[string]bool, len(ss))
	handles := make(map[core.MediaHandle]bool, len(ss))
	for _, s := range ss {
		live[s.Peer] = true
		handles[s.Media] = true
	}

	rt.mu.Lock()
	var ended []string
	for p := range rt.live {
		if !live[p] {
			ended = append(ended, p)
			delete(rt.outTracks, p)
		}
	}
	rt.live = live
	for h := range rt.answering {
		if !handles[h] {
			delete(rt.answering, h)
		}
	}
	rt.mu.Unlock()

	for _, p := range ended {
		rt.relays.Stop(p)
	}
}

// autoAnswer answers each new inbound call once.
func (rt *runtime) autoAnswer(ss []calls.Session) {
	for _, s := range ss {
		if s.Answered {
			continue
		}
		rt.mu.Lock()
		_, busy := rt.answering[s.Media]
		if !busy {
			rt.answering[s.Media] = struct{}{}
		}
		rt.mu.Unlock()
		if busy {
			continue
		}

		go func(peerID string) {
			local, err := rt.localStream(peerID)
			if err != nil {
				log.Error().Err(err).Str("module", "node").Str("peer", peerID).Msg("no local stream")
				return
			}
			for _, p := range rt.node.Calls().AnswerCall(peerID, local) {
				go rt.settled(p)
			}
		}(s.Peer)
	}
}
