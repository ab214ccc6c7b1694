package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"distsys/internal/store"
	"distsys/internal/vclock"
)

// PeerClient is the HTTP-backed implementation of cluster.ReplicaClient
// and cluster.Transport, the outbound interfaces a Node uses to talk to
// its peers; RemoteDirectory below implements cluster.Directory on top
// of it. Kept in this package
// rather than in cluster itself so cluster has no transport dependency
// of its own.
type PeerClient struct {
	httpClient *http.Client
}

// NewPeerClient builds a PeerClient with timeout applied to every
// outbound call.
func NewPeerClient(timeout time.Duration) *PeerClient {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &PeerClient{httpClient: &http.Client{Timeout: timeout}}
}

func (p *PeerClient) postJSON(ctx context.Context, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ReplicatePut implements cluster.ReplicaClient.
func (p *PeerClient) ReplicatePut(ctx context.Context, addr, key string, siblings []store.VersionedValue) error {
	body := map[string]any{"key": key, "siblings": siblings}
	return p.postJSON(ctx, fmt.Sprintf("%s/internal/replicate", addr), body, nil)
}

// ReplicateGet implements cluster.ReplicaClient.
func (p *PeerClient) ReplicateGet(ctx context.Context, addr, key string) ([]store.VersionedValue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/internal/fetch/%s", addr, key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out struct {
		Siblings []store.VersionedValue `json:"siblings"`
	}
	return out.Siblings, json.NewDecoder(resp.Body).Decode(&out)
}

// ReplicateDelete implements cluster.ReplicaClient.
func (p *PeerClient) ReplicateDelete(ctx context.Context, addr, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/internal/fetch/%s", addr, key), nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ForwardPut implements cluster.ReplicaClient.
func (p *PeerClient) ForwardPut(ctx context.Context, addr, key, data string, causalContext vclock.Clock) (vclock.Clock, error) {
	body := map[string]any{"key": key, "value": data, "context": causalContext}
	var out struct {
		Clock vclock.Clock `json:"clock"`
	}
	if err := p.postJSON(ctx, fmt.Sprintf("%s/internal/forward-put", addr), body, &out); err != nil {
		return nil, err
	}
	return out.Clock, nil
}

// Gossip implements cluster.Transport: pushes view and knownFailed to
// addr and returns its merged reply.
func (p *PeerClient) Gossip(addr string, view map[string]uint64, knownFailed []string) (map[string]uint64, []string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out struct {
		View        map[string]uint64 `json:"view"`
		KnownFailed []string           `json:"known_failed"`
	}
	body := map[string]any{"view": view, "known_failed": knownFailed}
	if err := p.postJSON(ctx, fmt.Sprintf("%s/internal/gossip", addr), body, &out); err != nil {
		return nil, nil, err
	}
	return out.View, out.KnownFailed, nil
}

// RemoteDirectory implements cluster.Directory against one fixed seed
// node's address, for a node joining an existing cluster through it.
type RemoteDirectory struct {
	client   *PeerClient
	seedAddr string
}

// NewRemoteDirectory builds a Directory that asks seedAddr for its
// known peers.
func NewRemoteDirectory(client *PeerClient, seedAddr string) *RemoteDirectory {
	return &RemoteDirectory{client: client, seedAddr: seedAddr}
}

// Peers implements cluster.Directory.
func (d *RemoteDirectory) Peers(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/cluster/peers", d.seedAddr), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out struct {
		Peers map[string]string `json:"peers"`
	}
	return out.Peers, json.NewDecoder(resp.Body).Decode(&out)
}
