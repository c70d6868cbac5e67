package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"vaultkeeper/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) call(method string, req any, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// failure returns the operation error carried in a reply, typed as
// *api.Error so callers can read its kind.
func failure(r Reply) error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Items lists stored items matching q.
func (c *Client) Items(q api.ItemsQuery) (*ItemsResponse, error) {
	var resp ItemsResponse
	if err := c.call("Items", ItemsRequest{ItemsQuery: q}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Item describes one instance.
func (c *Client) Item(instanceID string) (*ItemResponse, error) {
	var resp ItemResponse
	if err := c.call("Item", ItemRequest{InstanceID: instanceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Transfer moves an instance. The response is returned with any failure.
func (c *Client) Transfer(req api.TransferRequest) (*TransferResponse, error) {
	var resp TransferResponse
	if err := c.call("Transfer", TransferRequest{TransferRequest: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Socket inserts a plug.
func (c *Client) Socket(req api.SocketRequest) (*SocketResponse, error) {
	var resp SocketResponse
	if err := c.call("Socket", SocketRequest{SocketRequest: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Lock sets an instance's lock state.
func (c *Client) Lock(req api.LockRequest) (*LockResponse, error) {
	var resp LockResponse
	if err := c.call("Lock", LockRequest{LockRequest: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Loadout runs or validates a loadout. An incomplete run returns the
// itemized response together with the failure.
func (c *Client) Loadout(req api.LoadoutRequest) (*LoadoutResponse, error) {
	var resp LoadoutResponse
	if err := c.call("Loadout", LoadoutRequest{LoadoutRequest: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Resync forces a profile fetch.
func (c *Client) Resync() (*ResyncResponse, error) {
	var resp ResyncResponse
	if err := c.call("Resync", ResyncRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// History lists journal rows.
func (c *Client) History(q api.HistoryQuery) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{HistoryQuery: q}, &resp); err != nil {
		return nil, err
	}
	return &resp, failure(resp.Reply)
}

// Events fetches hub events after since, waiting up to wait for one.
func (c *Client) Events(since uint64, limit int, wait time.Duration) (*EventsResponse, error) {
	var resp EventsResponse
	req := EventsRequest{Since: since, Limit: limit, WaitMillis: int(wait / time.Millisecond)}
	if err := c.call("Events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
