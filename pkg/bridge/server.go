package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pg9182/growtopia-proxy/pkg/enet"
	"github.com/pg9182/growtopia-proxy/pkg/gtproto"
	"github.com/pg9182/growtopia-proxy/pkg/metricsx"
	"github.com/pg9182/growtopia-proxy/pkg/webendpoint"
)

// Server owns the routing table and both legs of the bridge, wiring them
// together the way pkg/atlas.Server owns the masterserver's HTTP handler
// and storage backends.
type Server struct {
	Log      zerolog.Logger
	Config   Config
	Routing  *RoutingTable
	Pipeline *gtproto.Pipeline
	Counters *metricsx.PacketCounters

	configPath string

	downstream *enet.Host
	upstream   *enet.Host

	web     *webendpoint.Handler
	httpSrv *http.Server

	mu     sync.Mutex
	closed bool
}

// NewServer constructs a Server from c, binding the downstream and
// upstream ENet hosts and the web endpoint's HTTP server without starting
// any of their loops; call Run to start serving.
func NewServer(c Config, configPath string) (*Server, error) {
	log := configureLogging(c)

	downstream, err := enet.NewHost(netip.AddrPortFrom(netip.IPv4Unspecified(), c.ENetServerPort), enet.Settings{
		PeerLimit:            1,
		ChannelLimit:         2,
		Compressor:           enet.NewRangeCoder(),
		Checksum:             enet.CRC32,
		UsingNewPacketServer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: bind downstream host: %w", err)
	}

	upstream, err := enet.NewHost(netip.AddrPortFrom(netip.IPv4Unspecified(), 0), enet.Settings{
		PeerLimit:      1,
		ChannelLimit:   initialChannelLimit,
		Compressor:     enet.NewRangeCoder(),
		Checksum:       enet.CRC32,
		UsingNewPacket: true,
	})
	if err != nil {
		downstream.Close()
		return nil, fmt.Errorf("bridge: bind upstream host: %w", err)
	}

	rt := NewRoutingTable()
	pipeline := gtproto.NewPipeline("127.0.0.1", int32(c.ENetServerPort), log.With().Str("component", "pipeline").Logger())

	web := webendpoint.NewHandler(webendpoint.Config{
		LocalHost:      "127.0.0.1",
		LocalENetPort:  c.ENetServerPort,
		OnServerData:   rt.SetServerData,
		OnUpstreamAddr: rt.SetUpstreamAddr,
		MinimumVersion: c.MinimumClientVersion,
		Log:            log.With().Str("component", "webendpoint").Logger(),
	})

	mux := http.NewServeMux()
	mux.Handle("/growtopia/server_data.php", web)

	s := &Server{
		Log:        log,
		Config:     c,
		Routing:    rt,
		Pipeline:   pipeline,
		Counters:   metricsx.NewPacketCounters(),
		configPath: configPath,
		downstream: downstream,
		upstream:   upstream,
		web:        web,
	}

	mux.HandleFunc("/metrics", s.serveMetrics)

	s.httpSrv = &http.Server{
		Addr:      fmt.Sprintf(":%d", c.WebServerPort),
		Handler:   mux,
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return s, nil
}

func configureLogging(c Config) zerolog.Logger {
	if c.LogPretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(c.LogLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(c.LogLevel).With().Timestamp().Logger()
}

func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	s.Counters.WritePrometheus(w)
}

// Run starts the downstream and upstream event loops and the HTTPS web
// endpoint, blocking until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.runDownstream(stop) }()
	go func() { defer wg.Done(); s.runUpstream(stop) }()

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info().Str("addr", s.httpSrv.Addr).Msg("starting web endpoint")
		if err := s.httpSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(shutdownCtx)

	wg.Wait()

	s.mu.Lock()
	s.closed = true
	s.downstream.Close()
	s.upstream.Close()
	s.mu.Unlock()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	default:
	}
	return ctx.Err()
}

// HandleSIGHUP reloads the persisted configuration into s.Config. ENet
// hosts are not re-bound, and loggers already built keep their level; the
// reloaded values are only visible through s.Config.
func (s *Server) HandleSIGHUP() {
	c, err := LoadOrInit(s.configPath)
	if err != nil {
		s.Log.Error().Err(err).Msg("reload config failed")
		return
	}
	s.mu.Lock()
	s.Config = c
	s.mu.Unlock()
	s.Log.Info().Msg("config reloaded")
}

// disconnectUpstream tears down the upstream leg in response to the
// client disconnecting.
func (s *Server) disconnectUpstream() {
	if p := s.Routing.UpstreamPeer(); p != nil {
		p.DisconnectNow(0)
		s.Routing.SetUpstreamPeer(nil)
	}
}

// disconnectClient tears down the client leg in response to the upstream
// server disconnecting.
func (s *Server) disconnectClient() {
	if p := s.Routing.ClientPeer(); p != nil {
		p.DisconnectNow(0)
		s.Routing.SetClientPeer(nil)
	}
}

// disconnectBoth tears down both legs, used for the "action|quit" game
// message.
func (s *Server) disconnectBoth() {
	s.disconnectClient()
	s.disconnectUpstream()
}

// triggerReconnect implements the reconnect cycle: disconnect the leg
// opposite the one the tank Disconnect packet arrived on, then re-issue
// connect() towards the cached upstream address on a higher channel
// count, matching the game's own session-migration pattern. A Disconnect
// seen from the client disconnects the upstream peer; one seen from the
// server disconnects the client peer.
func (s *Server) triggerReconnect(dir gtproto.Direction) {
	if dir == gtproto.FromServer {
		s.disconnectClient()
	} else {
		s.disconnectUpstream()
	}

	addr, ok := s.Routing.UpstreamAddr()
	if !ok {
		s.Log.Warn().Msg("reconnect requested but no upstream address cached")
		return
	}
	if _, err := s.upstream.Connect(addr, reconnectChannelLimit); err != nil {
		s.Log.Error().Err(err).Msg("reconnect to upstream failed")
	}
}

// LocalAddr returns the UDP address clients connect to on the downstream
// leg.
func (s *Server) LocalAddr() net.Addr {
	return s.downstream.LocalAddr()
}
