package bridge

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/pg9182/growtopia-proxy/pkg/enet"
	"github.com/pg9182/growtopia-proxy/pkg/gtproto"
)

// downstreamTimeoutLimit/Minimum/Maximum are the ENet peer timeouts given
// to the client leg so a stalled upstream doesn't permanently wedge it.
const (
	downstreamTimeoutLimit   = 0
	downstreamTimeoutMinimum = 12000
	downstreamTimeoutMaximum = 0
)

// runDownstream is C2: the ENet server the real game client connects to.
// It alternates a non-blocking service() call with a short sleep when
// idle, handling at most one event per iteration.
func (s *Server) runDownstream(stop <-chan struct{}) {
	log := s.Log.With().Str("component", "downstream").Logger()

	for {
		select {
		case <-stop:
			return
		default:
		}

		ev, ok, err := s.downstream.Service()
		if err != nil {
			log.Error().Err(err).Msg("service error")
			continue
		}
		if !ok {
			time.Sleep(12 * time.Millisecond)
			continue
		}

		switch ev.Type {
		case enet.EventConnect:
			peer, has := s.downstream.Peer(ev.Peer)
			if !has {
				continue
			}
			peer.SetTimeout(downstreamTimeoutLimit, downstreamTimeoutMinimum, downstreamTimeoutMaximum)
			s.Routing.SetClientPeer(peer)
			s.Counters.Observe("client", "connect")
			log.Info().Str("addr", ev.Addr.String()).Msg("client connected")

		case enet.EventDisconnect:
			s.Routing.SetClientPeer(nil)
			s.Counters.Observe("client", "disconnect")
			log.Info().Msg("client disconnected")
			s.disconnectUpstream()

		case enet.EventReceive:
			s.Counters.Observe("client", "receive")
			s.Counters.ObserveBytes("client", len(ev.Data))
			s.handleFromClient(ev.Data, log)
		}
	}
}

func (s *Server) handleFromClient(data []byte, log zerolog.Logger) {
	res := s.Pipeline.Intercept(data, gtproto.FromClient)
	switch res.Action {
	case gtproto.ActionForward, gtproto.ActionRewrite:
		if !s.Routing.Ready() {
			s.Counters.Observe("client", "dropped-not-ready")
			log.Warn().Msg("dropping client packet: both legs must be connected to forward")
			return
		}
		up := s.Routing.UpstreamPeer()
		if up == nil {
			s.Counters.Observe("client", "dropped-not-ready")
			log.Warn().Msg("dropping client packet: upstream not connected")
			return
		}
		if err := up.Send(0, res.Packet, enet.PacketReliable); err != nil {
			log.Warn().Err(err).Msg("forward to upstream failed")
		}
		s.Counters.Observe("upstream", "sent")

	case gtproto.ActionDrop:
		s.Counters.Observe("client", "dropped")

	case gtproto.ActionReconnect:
		s.Counters.Observe("client", "reconnect")
		s.triggerReconnect(res.Dir)

	case gtproto.ActionDisconnectBoth:
		s.Counters.Observe("client", "quit")
		s.disconnectBoth()
	}
}
