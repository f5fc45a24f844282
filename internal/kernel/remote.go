package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kozo-systems/policyd/internal/svcerr"
)

// RemoteClient is the production Client: every method is a one-line
// JSON request/response exchange over a Unix domain socket to the
// microkernel's syscall proxy. There is no real microkernel underneath a
// Go process, so this socket stands in for the trap instruction a native
// Policy Service would execute; its wire shape is deliberately simple
// (newline-delimited JSON) so it can be driven by a test double or
// inspected with a plain netcat session during bring-up.
type RemoteClient struct {
	socketPath string
	dialTO     time.Duration

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// NewRemoteClient returns a RemoteClient that lazily dials socketPath on
// first use.
func NewRemoteClient(socketPath string) *RemoteClient {
	return &RemoteClient{socketPath: socketPath, dialTO: 5 * time.Second}
}

type kernelRequest struct {
	Op             string `json:"op"`
	UntypedSlot    Slot   `json:"untyped_slot,omitempty"`
	Target         CapType `json:"target,omitempty"`
	DestSlot       Slot   `json:"dest_slot,omitempty"`
	SizeBits       int    `json:"size_bits,omitempty"`
	SrcSlot        Slot   `json:"src_slot,omitempty"`
	DestCNode      CNodeID `json:"dest_cnode,omitempty"`
	Rights         Rights `json:"rights,omitempty"`
	ParentSlot     Slot   `json:"parent_slot,omitempty"`
	PathDescriptor string `json:"path_descriptor,omitempty"`
	CNode          CNodeID `json:"cnode,omitempty"`
	Slot           Slot   `json:"slot,omitempty"`
	Badge          uint64 `json:"badge,omitempty"`
	ThreadCap      ThreadCap `json:"thread_cap,omitempty"`
	Endpoint       uint64 `json:"endpoint,omitempty"`
	Name           string `json:"name,omitempty"`
	Payload        []byte `json:"payload,omitempty"`
	Flags          AttestFlags `json:"flags,omitempty"`
	Byte           byte   `json:"byte,omitempty"`
}

type kernelResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	ResultSlot Slot      `json:"result_slot,omitempty"`
	Endpoint   uint64    `json:"endpoint,omitempty"`
	Present    bool      `json:"present,omitempty"`
	Badge      uint64    `json:"badge,omitempty"`
	ThreadCap  uint64    `json:"thread_cap,omitempty"`
	Token      string    `json:"token,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`
}

func (c *RemoteClient) ensureConn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: c.dialTO}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return svcerr.Internal(fmt.Sprintf("kernel: dial %s", c.socketPath), err)
	}
	c.conn = conn
	c.rd = bufio.NewReader(conn)
	return nil
}

// roundTrip sends req as one line of JSON and reads one line of JSON
// response. The socket is dropped and redialed on any I/O error so a
// restarted kernel proxy doesn't wedge the client permanently.
func (c *RemoteClient) roundTrip(ctx context.Context, req kernelRequest) (*kernelResponse, error) {
	if err := c.ensureConn(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	enc := json.NewEncoder(c.conn)
	if err := enc.Encode(req); err != nil {
		c.closeLocked()
		return nil, svcerr.Internal("kernel: write request", err)
	}

	line, err := c.rd.ReadBytes('\n')
	if err != nil {
		c.closeLocked()
		return nil, svcerr.Internal("kernel: read response", err)
	}

	var resp kernelResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, svcerr.Internal("kernel: decode response", err)
	}
	if !resp.OK {
		return nil, svcerr.New(svcerr.Code(resp.ErrorCode), resp.Error)
	}
	return &resp, nil
}

func (c *RemoteClient) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.rd = nil
	}
}

// Close releases the underlying socket, if dialed.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *RemoteClient) Retype(ctx context.Context, untypedSlot Slot, target CapType, destSlot Slot, sizeBits int) error {
	_, err := c.roundTrip(ctx, kernelRequest{Op: "retype", UntypedSlot: untypedSlot, Target: target, DestSlot: destSlot, SizeBits: sizeBits})
	return err
}

func (c *RemoteClient) CapTransfer(ctx context.Context, srcSlot Slot, destCNode CNodeID, destSlot Slot, rights Rights) error {
	_, err := c.roundTrip(ctx, kernelRequest{Op: "cap_transfer", SrcSlot: srcSlot, DestCNode: destCNode, DestSlot: destSlot, Rights: rights})
	return err
}

func (c *RemoteClient) CapMint(ctx context.Context, parentSlot Slot, rights Rights, pathDescriptor string) (Slot, error) {
	resp, err := c.roundTrip(ctx, kernelRequest{Op: "cap_mint", ParentSlot: parentSlot, Rights: rights, PathDescriptor: pathDescriptor})
	if err != nil {
		return SlotNone, err
	}
	return resp.ResultSlot, nil
}

func (c *RemoteClient) CapRevoke(ctx context.Context, cnode CNodeID, slot Slot) error {
	_, err := c.roundTrip(ctx, kernelRequest{Op: "cap_revoke", CNode: cnode, Slot: slot})
	return err
}

func (c *RemoteClient) CapDelete(ctx context.Context, slot Slot) error {
	_, err := c.roundTrip(ctx, kernelRequest{Op: "cap_delete", Slot: slot})
	return err
}

func (c *RemoteClient) CapVerify(ctx context.Context, badge uint64, threadCap ThreadCap) (*BadgeAssertion, error) {
	resp, err := c.roundTrip(ctx, kernelRequest{Op: "cap_verify", Badge: badge, ThreadCap: threadCap})
	if err != nil {
		return nil, err
	}
	return &BadgeAssertion{Badge: resp.Badge, ThreadCap: resp.ThreadCap, Token: resp.Token}, nil
}

func (c *RemoteClient) EndpointCreate(ctx context.Context) (Endpoint, error) {
	resp, err := c.roundTrip(ctx, kernelRequest{Op: "endpoint_create"})
	if err != nil {
		return Endpoint{}, err
	}
	return EndpointFromRaw(resp.Endpoint), nil
}

func (c *RemoteClient) NamespaceRegister(ctx context.Context, ep Endpoint, name string) error {
	_, err := c.roundTrip(ctx, kernelRequest{Op: "namespace_register", Endpoint: ep.Raw(), Name: name})
	return err
}

func (c *RemoteClient) Recv(ctx context.Context, ep Endpoint) (uint64, []byte, error) {
	resp, err := c.roundTrip(ctx, kernelRequest{Op: "ipc_recv", Endpoint: ep.Raw()})
	if err != nil {
		return 0, nil, err
	}
	return resp.Badge, resp.Payload, nil
}

func (c *RemoteClient) Reply(ctx context.Context, badge uint64, buf []byte) error {
	// Distinct reply buffer: a copy is sent so the caller remains free to
	// reuse or discard buf immediately after this call returns.
	out := make([]byte, len(buf))
	copy(out, buf)
	_, err := c.roundTrip(ctx, kernelRequest{Op: "ipc_reply", Badge: badge, Payload: out})
	return err
}

func (c *RemoteClient) Call(ctx context.Context, ep Endpoint, buf []byte) ([]byte, error) {
	resp, err := c.roundTrip(ctx, kernelRequest{Op: "ipc_call", Endpoint: ep.Raw(), Payload: buf})
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (c *RemoteClient) HardwareAttest(ctx context.Context, flags AttestFlags) (bool, error) {
	resp, err := c.roundTrip(ctx, kernelRequest{Op: "hardware_attest", Flags: flags})
	if err != nil {
		return false, err
	}
	return resp.Present, nil
}

func (c *RemoteClient) DebugPutChar(b byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTO)
	defer cancel()
	_, err := c.roundTrip(ctx, kernelRequest{Op: "debug_putchar", Byte: b})
	return err
}
