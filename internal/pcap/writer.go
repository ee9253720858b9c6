package pcap

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// mss bounds the payload of one synthetic TCP segment.
const mss = 1460

// Endpoint is one side of a synthetic TCP flow.
type Endpoint struct {
	MAC  net.HardwareAddr
	IP   net.IP
	Port uint16
}

// DefaultClient and DefaultServer are the endpoints NewWriter uses.
var (
	DefaultClient = Endpoint{
		MAC:  net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0A},
		IP:   net.IPv4(192, 168, 1, 10).To4(),
		Port: 50000,
	}
	DefaultServer = Endpoint{
		MAC:  net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x14},
		IP:   net.IPv4(192, 168, 1, 20).To4(),
		Port: PortExplicit,
	}
)

// Writer records encapsulation frames as a single TCP conversation between
// a client and a server. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	client Endpoint
	server Endpoint
	seq    [2]uint32 // next sequence number, client then server
	now    func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithEndpoints replaces the default client and server endpoints.
func WithEndpoints(client, server Endpoint) WriterOption {
	return func(w *Writer) { w.client, w.server = client, server }
}

// WithTimestamps sets the source of packet timestamps.
func WithTimestamps(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter writes a pcap file header to out and returns a writer for it.
func NewWriter(out io.Writer, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		w:      pcapgo.NewWriter(out),
		client: DefaultClient,
		server: DefaultServer,
		seq:    [2]uint32{1000, 5000},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return w, nil
}

// WriteFrame records one frame travelling to the server when toServer is
// set and to the client otherwise. Frames longer than one segment are
// split.
func (w *Writer) WriteFrame(toServer bool, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(frame) > 0 {
		n := min(len(frame), mss)
		if err := w.writeSegment(toServer, frame[:n]); err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

func (w *Writer) writeSegment(toServer bool, payload []byte) error {
	src, dst := w.client, w.server
	self, peer := 0, 1
	if !toServer {
		src, dst = dst, src
		self, peer = 1, 0
	}
	eth := &layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       dst.MAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.IP,
		DstIP:    dst.IP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port),
		DstPort: layers.TCPPort(dst.Port),
		Seq:     w.seq[self],
		Ack:     w.seq[peer],
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("tcp checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize segment: %w", err)
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: w.now(), CaptureLength: len(data), Length: len(data)}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.seq[self] += uint32(len(payload))
	return nil
}

// Tap returns an io.Writer that records every frame written to it as
// client traffic before passing it on to next.
func (w *Writer) Tap(next io.Writer) io.Writer {
	return tap{w: w, next: next}
}

type tap struct {
	w    *Writer
	next io.Writer
}

func (t tap) Write(frame []byte) (int, error) {
	if err := t.w.WriteFrame(true, frame); err != nil {
		return 0, err
	}
	return t.next.Write(frame)
}
