// Package pcap reads and writes packet captures of EtherNet/IP traffic and
// decodes the CIP messages they carry.
package pcap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/enip"
)

// PortExplicit is the EtherNet/IP encapsulation port.
const PortExplicit = 44818

// pcapng section header block type.
var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// Frame is one encapsulation frame found in a capture.
type Frame struct {
	Timestamp time.Time
	Transport string // "tcp" or "udp"
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Encap     enip.Encapsulation
}

// ToServer reports whether the frame travels towards the encapsulation port.
func (f Frame) ToServer() bool {
	return f.DstPort == PortExplicit
}

// ReadFile extracts the encapsulation frames of a pcap or pcapng file.
func ReadFile(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	frames, err := Read(f)
	if err != nil {
		return frames, fmt.Errorf("%s: %w", path, err)
	}
	return frames, nil
}

// Read extracts encapsulation frames from a capture stream. TCP payloads
// are reassembled per flow, so frames split across segments are found.
func Read(r io.Reader) ([]Frame, error) {
	br := bufio.NewReader(r)
	var (
		source gopacket.PacketDataSource
		link   layers.LinkType
	)
	if magic, err := br.Peek(4); err == nil && string(magic) == string(ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("read pcapng header: %w", err)
		}
		source, link = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("read pcap header: %w", err)
		}
		source, link = pr, pr.LinkType()
	}

	packets := gopacket.NewPacketSource(source, link)
	streams := make(map[string][]byte)
	var frames []Frame
	for n := 1; ; n++ {
		packet, err := packets.NextPacket()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("packet %d: %w", n, err)
		}
		frames = append(frames, framesOf(packet, streams)...)
	}
}

func framesOf(packet gopacket.Packet, streams map[string][]byte) []Frame {
	meta := Frame{}
	if md := packet.Metadata(); md != nil {
		meta.Timestamp = md.Timestamp
	}
	if nl := packet.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		meta.SrcIP, meta.DstIP = src.String(), dst.String()
	}

	if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		if !isENIPPort(uint16(tcp.SrcPort), uint16(tcp.DstPort)) || len(tcp.Payload) == 0 {
			return nil
		}
		meta.Transport = "tcp"
		meta.SrcPort, meta.DstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
		key := streamKey(meta)
		raw, rest := splitFrames(append(streams[key], tcp.Payload...))
		streams[key] = rest
		return withMeta(meta, raw)
	}

	if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		if !isENIPPort(uint16(udp.SrcPort), uint16(udp.DstPort)) || len(udp.Payload) == 0 {
			return nil
		}
		meta.Transport = "udp"
		meta.SrcPort, meta.DstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
		raw, _ := splitFrames(udp.Payload)
		return withMeta(meta, raw)
	}
	return nil
}

func withMeta(meta Frame, raw [][]byte) []Frame {
	frames := make([]Frame, 0, len(raw))
	for _, buf := range raw {
		e, err := enip.Decode(buf)
		if err != nil {
			continue
		}
		f := meta
		f.Encap = e
		frames = append(frames, f)
	}
	return frames
}

// splitFrames cuts whole frames off the front of buf and returns the
// incomplete tail. Bytes that cannot start a frame are skipped; NOP is not
// accepted as a frame start so zero padding does not resync.
func splitFrames(buf []byte) ([][]byte, []byte) {
	var frames [][]byte
	off := 0
	for len(buf)-off >= enip.HeaderSize {
		if !knownCommand(codec.Uint16(buf[off:])) {
			off++
			continue
		}
		total := enip.HeaderSize + int(codec.Uint16(buf[off+2:]))
		if len(buf)-off < total {
			break
		}
		frames = append(frames, append([]byte(nil), buf[off:off+total]...))
		off += total
	}
	if off == len(buf) {
		return frames, nil
	}
	return frames, append([]byte(nil), buf[off:]...)
}

func knownCommand(cmd uint16) bool {
	switch cmd {
	case enip.CommandListServices,
		enip.CommandListIdentity,
		enip.CommandListInterfaces,
		enip.CommandRegisterSession,
		enip.CommandUnregisterSession,
		enip.CommandSendRRData,
		enip.CommandSendUnitData:
		return true
	}
	return false
}

func isENIPPort(src, dst uint16) bool {
	return src == PortExplicit || dst == PortExplicit
}

func streamKey(f Frame) string {
	return fmt.Sprintf("%s:%d->%s:%d", f.SrcIP, f.SrcPort, f.DstIP, f.DstPort)
}
