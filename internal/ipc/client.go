package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"loom/internal/api"
)

// Client is the CLI-side handle for the daemon's unix-socket RPC service.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial opens a jsonrpc connection on socketPath.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close tears down the socket connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call wraps the rpc round trip so each method stays a one-liner.
func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start asks the daemon to begin working the queue.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Loom.Start", StartRequest{})
}

// Stop asks the daemon to halt queue processing.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Loom.Stop", StopRequest{})
}

// Status reads the daemon's runtime snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Loom.Status", StatusRequest{})
}

// AddProject queues a new script for processing.
func (c *Client) AddProject(title, script string) (*AddProjectResponse, error) {
	return call[AddProjectResponse](c, "Loom.AddProject", AddProjectRequest{Title: title, Script: script})
}

// LogTail reads daemon log lines, optionally following for new output.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "Loom.LogTail", req)
}

// DatabaseHealth asks the daemon for queue database integrity details.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "Loom.DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification has the daemon fire a test webhook.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "Loom.TestNotification", TestNotificationRequest{})
}

// QueueList fetches queue items, narrowed to statuses when given.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "Loom.QueueList", QueueListRequest{Statuses: statuses})
}

// QueueDescribe fetches one queue item by id.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	return call[QueueDescribeResponse](c, "Loom.QueueDescribe", QueueDescribeRequest{ID: id})
}

// QueueScenes returns the scene breakdown for a queue item.
func (c *Client) QueueScenes(id int64) (*QueueScenesResponse, error) {
	return call[QueueScenesResponse](c, "Loom.QueueScenes", QueueScenesRequest{ID: id})
}

// QueueSceneEdit updates editable timing fields on one scene of an item.
func (c *Client) QueueSceneEdit(id int64, seq int, edit api.SceneTimingEdit) (*QueueSceneEditResponse, error) {
	return call[QueueSceneEditResponse](c, "Loom.QueueSceneEdit", QueueSceneEditRequest{ID: id, Seq: seq, Edit: edit})
}

// QueueClear deletes every queue item.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	return call[QueueClearResponse](c, "Loom.QueueClear", QueueClearRequest{})
}

// QueueClearCompleted deletes items that finished publishing.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	return call[QueueClearCompletedResponse](c, "Loom.QueueClearCompleted", QueueClearCompletedRequest{})
}

// QueueClearFailed deletes items parked in failed.
func (c *Client) QueueClearFailed() (*QueueClearFailedResponse, error) {
	return call[QueueClearFailedResponse](c, "Loom.QueueClearFailed", QueueClearFailedRequest{})
}

// QueueReset rolls items stuck mid-stage back to their start status.
func (c *Client) QueueReset() (*QueueResetResponse, error) {
	return call[QueueResetResponse](c, "Loom.QueueReset", QueueResetRequest{})
}

// QueueRetry retries failed items. A nil id list retries every failed item.
func (c *Client) QueueRetry(ids []int64) (*QueueRetryResponse, error) {
	return call[QueueRetryResponse](c, "Loom.QueueRetry", QueueRetryRequest{IDs: ids})
}

// QueueStop parks the given queue items in review.
func (c *Client) QueueStop(ids []int64) (*QueueStopResponse, error) {
	return call[QueueStopResponse](c, "Loom.QueueStop", QueueStopRequest{IDs: ids})
}

// QueueResume takes the given queue items out of review and back into the
// pipeline.
func (c *Client) QueueResume(ids []int64) (*QueueResumeResponse, error) {
	return call[QueueResumeResponse](c, "Loom.QueueResume", QueueResumeRequest{IDs: ids})
}

// QueueRemove deletes the given queue items.
func (c *Client) QueueRemove(ids []int64) (*QueueRemoveResponse, error) {
	return call[QueueRemoveResponse](c, "Loom.QueueRemove", QueueRemoveRequest{IDs: ids})
}

// QueueHealth summarizes queue counts and stuck items.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	return call[QueueHealthResponse](c, "Loom.QueueHealth", QueueHealthRequest{})
}
