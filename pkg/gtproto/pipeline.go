package gtproto

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Direction identifies which leg of the bridge a packet arrived on.
type Direction int

const (
	FromClient Direction = iota
	FromServer
)

func (d Direction) String() string {
	if d == FromServer {
		return "server"
	}
	return "client"
}

// Action is the interception pipeline's verdict for one packet.
type Action int

const (
	// ActionForward sends Result.Packet unchanged to the opposite leg.
	ActionForward Action = iota
	// ActionRewrite sends Result.Packet, a modified copy, to the opposite leg.
	ActionRewrite
	// ActionDrop discards the packet; nothing is sent to the opposite leg.
	ActionDrop
	// ActionReconnect drops the packet and asks the caller to disconnect the
	// opposite peer and reconnect upstream on a fresh channel count.
	ActionReconnect
	// ActionDisconnectBoth drops the packet and asks the caller to
	// disconnect both legs of the bridge.
	ActionDisconnectBoth
)

// Result is the interception pipeline's decision for one packet.
type Result struct {
	Action Action
	Packet []byte

	// Dir is the direction the triggering packet arrived from, set for
	// ActionReconnect so the caller knows which leg is "opposite" and
	// must be disconnected.
	Dir Direction

	// ServerHost and ServerPort are set when an OnSendToServer call was
	// observed, for the caller to store in its routing table.
	ServerHost    string
	ServerPort    int32
	HasServerData bool
}

// Pipeline is a deterministic function of an incoming packet and the
// direction it arrived from, parameterized by the bridge's own local
// listening address so it knows what to rewrite OnSendToServer calls to
// point at.
type Pipeline struct {
	LocalHost string
	LocalPort int32

	Log zerolog.Logger
}

// NewPipeline builds a Pipeline that rewrites OnSendToServer calls to
// point the client back at localHost:localPort.
func NewPipeline(localHost string, localPort int32, log zerolog.Logger) *Pipeline {
	return &Pipeline{LocalHost: localHost, LocalPort: localPort, Log: log}
}

// Intercept applies the pipeline to data, a full outer-tagged packet body.
func (p *Pipeline) Intercept(data []byte, dir Direction) Result {
	if len(data) < OuterTagSize {
		p.Log.Warn().Int("len", len(data)).Str("dir", dir.String()).Msg("gtproto: packet shorter than outer tag, forwarding")
		return Result{Action: ActionForward, Packet: data}
	}

	switch tag := ReadOuterTag(data); tag {
	case NetMessageGamePacket:
		return p.interceptGamePacket(data, dir)
	case NetMessageGameMessage:
		return p.interceptGameMessage(data, dir)
	case NetMessageGenericText, NetMessageTrack:
		p.Log.Debug().Str("dir", dir.String()).Str("type", tag.String()).Msg("gtproto: text packet")
		return Result{Action: ActionForward, Packet: data}
	default:
		return Result{Action: ActionForward, Packet: data}
	}
}

func (p *Pipeline) interceptGamePacket(data []byte, dir Direction) Result {
	if len(data) < OuterTagSize+TankHeaderSize {
		p.Log.Warn().Int("len", len(data)).Msg("gtproto: game packet shorter than tank header, forwarding")
		return Result{Action: ActionForward, Packet: data}
	}

	header, err := UnmarshalTankHeader(data[OuterTagSize:])
	if err != nil {
		p.Log.Warn().Err(err).Msg("gtproto: malformed tank header, forwarding")
		return Result{Action: ActionForward, Packet: data}
	}

	switch header.Type {
	case TankCallFunction:
		return p.interceptCallFunction(data, header, dir)
	case TankDisconnect:
		p.Log.Info().Str("dir", dir.String()).Msg("gtproto: tank disconnect, starting reconnect cycle")
		return Result{Action: ActionReconnect, Dir: dir}
	case TankAppIntegrityFail:
		p.Log.Warn().Str("dir", dir.String()).Msg("gtproto: app integrity fail suppressed")
		return Result{Action: ActionDrop}
	default:
		return Result{Action: ActionForward, Packet: data}
	}
}

const payloadOffset = OuterTagSize + TankHeaderSize

func (p *Pipeline) interceptCallFunction(data []byte, header TankHeader, dir Direction) Result {
	vl, err := DeserializeVariantList(data[payloadOffset:])
	if err != nil {
		p.Log.Warn().Err(err).Msg("gtproto: malformed variant list, forwarding")
		return Result{Action: ActionForward, Packet: data}
	}

	name, _ := vl.FunctionName()
	switch name {
	case "OnSendToServer":
		return p.rewriteOnSendToServer(data, header, vl)
	case "OnSpawn":
		return p.rewriteOnSpawn(data, header, vl)
	case "OnConsoleMessage", "OnDialogRequest":
		if s, ok := vl.Get(1); ok {
			p.Log.Info().Str("dir", dir.String()).Str("function", name).Str("payload", s.String()).Msg("gtproto: logged function call")
		}
		return Result{Action: ActionForward, Packet: data}
	default:
		return Result{Action: ActionForward, Packet: data}
	}
}

func (p *Pipeline) rewriteOnSendToServer(data []byte, header TankHeader, vl VariantList) Result {
	portArg, ok := vl.Get(1)
	if !ok || portArg.Kind != VariantI32 {
		p.Log.Warn().Msg("gtproto: OnSendToServer missing port arg, forwarding")
		return Result{Action: ActionForward, Packet: data}
	}
	serverArg, ok := vl.Get(4)
	if !ok || serverArg.Kind != VariantString {
		p.Log.Warn().Msg("gtproto: OnSendToServer missing server arg, forwarding")
		return Result{Action: ActionForward, Packet: data}
	}

	fields := strings.SplitN(serverArg.S, "|", 2)
	host := fields[0]
	suffix := ""
	if len(fields) > 1 {
		suffix = "|" + fields[1]
	}

	result := Result{
		ServerHost:    host,
		ServerPort:    portArg.I,
		HasServerData: true,
	}

	vl.Elements[1] = NewI32Variant(p.LocalPort)
	vl.Elements[4] = NewStringVariant(p.LocalHost + suffix)

	p.Log.Info().Str("server", host).Int32("port", portArg.I).Msg("gtproto: OnSendToServer rewritten to local bridge")
	result.Action = ActionRewrite
	result.Packet = recompose(data, header, vl)
	return result
}

func (p *Pipeline) rewriteOnSpawn(data []byte, header TankHeader, vl VariantList) Result {
	arg1, ok := vl.Get(1)
	if !ok || arg1.Kind != VariantString {
		return Result{Action: ActionForward, Packet: data}
	}
	if !containsKV(arg1.S, "type", "local") {
		return Result{Action: ActionForward, Packet: data}
	}

	lines := splitKVLines(arg1.S)
	lines = append(lines, "mstate|1")
	vl.Elements[1] = NewStringVariant(strings.Join(lines, "\n"))

	p.Log.Info().Msg("gtproto: OnSpawn local, mstate|1 injected")
	return Result{Action: ActionRewrite, Packet: recompose(data, header, vl)}
}

func (p *Pipeline) interceptGameMessage(data []byte, dir Direction) Result {
	body := string(data[OuterTagSize:])
	if body == "action|quit" {
		p.Log.Info().Str("dir", dir.String()).Msg("gtproto: action|quit, disconnecting both legs")
		return Result{Action: ActionDisconnectBoth}
	}
	return Result{Action: ActionForward, Packet: data}
}

// recompose rebuilds a packet with the outer tag and header fields copied
// verbatim except extended_data_length, followed by the reserialized
// variant list.
func recompose(orig []byte, header TankHeader, vl VariantList) []byte {
	body := vl.Serialize()
	header.ExtendedDataLength = uint32(len(body))

	out := make([]byte, 0, payloadOffset+len(body))
	out = append(out, orig[:OuterTagSize]...)
	h := header.Marshal()
	out = append(out, h[:]...)
	out = append(out, body...)
	return out
}

// splitKVLines splits a pipe key/value text blob into its non-empty lines.
func splitKVLines(s string) []string {
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// containsKV reports whether s has a line "key|value".
func containsKV(s, key, value string) bool {
	want := fmt.Sprintf("%s|%s", key, value)
	for _, l := range splitKVLines(s) {
		if l == want {
			return true
		}
	}
	return false
}
