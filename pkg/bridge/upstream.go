package bridge

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pg9182/growtopia-proxy/pkg/enet"
	"github.com/pg9182/growtopia-proxy/pkg/gtproto"
)

// initialChannelLimit and reconnectChannelLimit are the ENet channel
// counts used for the upstream connect() call at session start versus
// after a reconnect cycle. The asymmetry mirrors observed behavior of
// the game's own session migration and is preserved even though its
// necessity isn't established.
const (
	initialChannelLimit   = 1
	reconnectChannelLimit = 2
)

// runUpstream is C3: the ENet client towards the real game server.
// Connection is established lazily, once the web endpoint has populated
// RoutingTable's upstream address.
func (s *Server) runUpstream(stop <-chan struct{}) {
	log := s.Log.With().Str("component", "upstream").Logger()

	for {
		select {
		case <-stop:
			return
		default:
		}

		s.maybeConnectUpstream(initialChannelLimit, &log)

		ev, ok, err := s.upstream.Service()
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
			peer, has := s.upstream.Peer(ev.Peer)
			if !has {
				continue
			}
			s.Routing.SetUpstreamPeer(peer)
			s.Counters.Observe("upstream", "connect")
			log.Info().Str("addr", ev.Addr.String()).Msg("upstream connected")

		case enet.EventDisconnect:
			s.Routing.SetUpstreamPeer(nil)
			s.Counters.Observe("upstream", "disconnect")
			log.Info().Msg("upstream disconnected")
			s.disconnectClient()

		case enet.EventReceive:
			s.Counters.Observe("server", "receive")
			s.Counters.ObserveBytes("server", len(ev.Data))
			s.handleFromServer(ev.Data, log)
		}
	}
}

// maybeConnectUpstream calls connect() whenever an upstream address is
// known and the routing table holds no upstream peer. The routing table
// only records the peer on its Connect event, so while an attempt is
// pending further calls are refused by the host's peer limit and logged.
func (s *Server) maybeConnectUpstream(channelLimit uint8, log *zerolog.Logger) {
	if s.Routing.UpstreamPeer() != nil {
		return
	}
	addr, ok := s.Routing.UpstreamAddr()
	if !ok {
		return
	}
	if _, err := s.upstream.Connect(addr, channelLimit); err != nil {
		log.Error().Err(err).Str("addr", addr.String()).Msg("connect upstream failed")
	}
}

func (s *Server) handleFromServer(data []byte, log zerolog.Logger) {
	res := s.Pipeline.Intercept(data, gtproto.FromServer)
	if res.HasServerData {
		s.Routing.SetServerData("server", res.ServerHost)
		s.Routing.SetServerData("port", strconv.Itoa(int(res.ServerPort)))
	}

	switch res.Action {
	case gtproto.ActionForward, gtproto.ActionRewrite:
		if !s.Routing.Ready() {
			s.Counters.Observe("server", "dropped-not-ready")
			log.Warn().Msg("dropping server packet: both legs must be connected to forward")
			return
		}
		cp := s.Routing.ClientPeer()
		if cp == nil {
			s.Counters.Observe("server", "dropped-not-ready")
			log.Warn().Msg("dropping server packet: client not connected")
			return
		}
		if err := cp.Send(0, res.Packet, enet.PacketReliable); err != nil {
			log.Warn().Err(err).Msg("forward to client failed")
		}
		s.Counters.Observe("client", "sent")

	case gtproto.ActionDrop:
		s.Counters.Observe("server", "dropped")

	case gtproto.ActionReconnect:
		s.Counters.Observe("server", "reconnect")
		s.triggerReconnect(res.Dir)

	case gtproto.ActionDisconnectBoth:
		s.Counters.Observe("server", "quit")
		s.disconnectBoth()
	}
}
