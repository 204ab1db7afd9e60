// Package mock provides an in-memory host.Client for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/reviewgate/reviewgate/internal/host"
)

// Client serves canned MR data and records posted notes.
type Client struct {
	mu sync.Mutex

	User      *host.User
	MRs       map[string]*host.MergeRequest // key: projectID:iid
	Changes   map[string][]host.FileChange
	Approvals map[string]*host.Approvals
	Files     map[string][]byte // key: projectID:ref:path

	Notes      map[int64]string // note id -> latest body
	nextNoteID int64

	// Errs forces an error per operation name (e.g. "changes", "note").
	Errs map[string]error
}

// NewClient creates an empty mock.
func NewClient() *Client {
	return &Client{
		MRs:       make(map[string]*host.MergeRequest),
		Changes:   make(map[string][]host.FileChange),
		Approvals: make(map[string]*host.Approvals),
		Files:     make(map[string][]byte),
		Notes:     make(map[int64]string),
	}
}

func key(projectID string, iid int) string {
	return fmt.Sprintf("%s:%d", projectID, iid)
}

// SetMR registers an MR with its changes.
func (c *Client) SetMR(projectID string, mr *host.MergeRequest, changes []host.FileChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(projectID, mr.IID)
	c.MRs[k] = mr
	c.Changes[k] = changes
}

func (c *Client) GetUser(context.Context) (*host.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["user"]; err != nil {
		return nil, err
	}
	if c.User != nil {
		return c.User, nil
	}
	return &host.User{ID: 1, Username: "reviewgate-bot"}, nil
}

func (c *Client) GetMergeRequest(_ context.Context, projectID string, iid int) (*host.MergeRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["mr"]; err != nil {
		return nil, err
	}
	mr, ok := c.MRs[key(projectID, iid)]
	if !ok {
		return nil, fmt.Errorf("merge request %s!%d not found", projectID, iid)
	}
	return mr, nil
}

func (c *Client) GetMergeRequestChanges(_ context.Context, projectID string, iid int) ([]host.FileChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["changes"]; err != nil {
		return nil, err
	}
	return c.Changes[key(projectID, iid)], nil
}

func (c *Client) GetMergeRequestApprovals(_ context.Context, projectID string, iid int) (*host.Approvals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["approvals"]; err != nil {
		return nil, err
	}
	return c.Approvals[key(projectID, iid)], nil
}

func (c *Client) CreateMergeRequestNote(_ context.Context, projectID string, iid int, body string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["note"]; err != nil {
		return 0, err
	}
	c.nextNoteID++
	c.Notes[c.nextNoteID] = body
	return c.nextNoteID, nil
}

func (c *Client) UpdateMergeRequestNote(_ context.Context, _ string, _ int, noteID int64, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["note"]; err != nil {
		return err
	}
	if _, ok := c.Notes[noteID]; !ok {
		return fmt.Errorf("note %d not found", noteID)
	}
	c.Notes[noteID] = body
	return nil
}

func (c *Client) GetProjectFileRaw(_ context.Context, projectID, path, ref string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Errs["file"]; err != nil {
		return nil, err
	}
	data, ok := c.Files[projectID+":"+ref+":"+path]
	if !ok {
		return nil, fmt.Errorf("file %s not found at %s", path, ref)
	}
	return data, nil
}

// NoteCount returns how many notes exist.
func (c *Client) NoteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Notes)
}

// NoteBody returns the current body of a note.
func (c *Client) NoteBody(id int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Notes[id]
}
