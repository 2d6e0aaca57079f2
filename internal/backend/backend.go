// Package backend wraps every MemoMind API endpoint in a typed call.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/transport"
)

// UploadField is the multipart field carrying the PDF.
const UploadField = "pdfFile"

// Timeouts bound the three classes of call.
type Timeouts struct {
	// Generate covers generate, export, follow-up and upload.
	Generate time.Duration
	Save     time.Duration
}

// generateOptions are the per-kind generation options sent as query params.
var generateOptions = map[document.Kind]url.Values{
	document.KindNotes: {
		"format":           {"structured"},
		"includeSummary":   {"true"},
		"includeKeyPoints": {"true"},
	},
	document.KindMCQs: {
		"count":              {"10"},
		"difficulty":         {"medium"},
		"includeExplanation": {"true"},
	},
	document.KindFlashcards: {
		"count":             {"15"},
		"difficulty":        {"medium"},
		"includeCategories": {"true"},
	},
}

// Client calls the backend through a transport client.
type Client struct {
	t        *transport.Client
	timeouts Timeouts
}

// New creates a backend client.
func New(t *transport.Client, timeouts Timeouts) *Client {
	if timeouts.Generate <= 0 {
		timeouts.Generate = 5 * time.Minute
	}
	if timeouts.Save <= 0 {
		timeouts.Save = time.Minute
	}
	return &Client{t: t, timeouts: timeouts}
}

// Credentials are login parameters.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration are signup parameters.
type Registration struct {
	Username        string `json:"username"`
	FullName        string `json:"fullName"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// User is the user record returned by auth endpoints.
type User struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// AuthResult is the login/signup response.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, errors.NewInvalidRequest("username and password are required")
	}
	var out AuthResult
	if err := c.t.JSON(ctx, http.MethodPost, "/auth/login", transport.Options{Body: creds}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, reg Registration) (*AuthResult, error) {
	if reg.Username == "" || reg.Password == "" {
		return nil, errors.NewInvalidRequest("username and password are required")
	}
	if reg.Password != reg.ConfirmPassword {
		return nil, errors.NewInvalidRequest("passwords do not match")
	}
	var out AuthResult
	if err := c.t.JSON(ctx, http.MethodPost, "/auth/signup", transport.Options{Body: reg}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.t.JSON(ctx, http.MethodPost, "/auth/logout", transport.Options{}, nil)
}

// Profile returns the current user's profile.
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.t.JSON(ctx, http.MethodGet, "/auth/profile", transport.Options{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile replaces profile fields.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.t.JSON(ctx, http.MethodPut, "/auth/profile", transport.Options{Body: fields}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload sends a PDF and returns the created item.
func (c *Client) Upload(ctx context.Context, userID, filename string, r io.Reader, progress func(sent, total int64)) (*document.Item, error) {
	if userID == "" {
		return nil, errors.NewAuthRequired()
	}
	if r == nil {
		return nil, errors.NewInvalidRequest("no file provided")
	}
	form := &transport.Form{
		Fields:   map[string]string{"userId": userID},
		File:     &transport.File{Field: UploadField, Name: filename, Reader: r},
		Progress: progress,
	}
	resp, err := c.t.Do(ctx, http.MethodPost, "/upload", transport.Options{Form: form, Timeout: c.timeouts.Generate})
	if err != nil {
		return nil, err
	}
	obj, ok := document.ParseObject(resp.Body)
	if !ok {
		return nil, errors.NewUnexpectedFormat(string(resp.Body))
	}
	item := &document.Item{
		ItemID:      obj.String("itemId", "item_id", "id"),
		ItemName:    obj.String("itemName", "item_name", "name"),
		OwnerUserID: userID,
	}
	if item.ItemID == "" {
		return nil, errors.NewUnexpectedFormat("upload response has no itemId")
	}
	if item.ItemName == "" {
		item.ItemName = strings.TrimSuffix(filename, ".pdf")
	}
	return item, nil
}

// Generate runs the generation task for kind.
func (c *Client) Generate(ctx context.Context, kind document.Kind, userID, itemID string) (*transport.Response, error) {
	if err := requireIDs(userID, itemID); err != nil {
		return nil, err
	}
	params := url.Values{"userId": {userID}, "itemId": {itemID}, "task": {string(kind)}}
	for k, v := range generateOptions[kind] {
		params[k] = v
	}
	return c.t.Do(ctx, http.MethodGet, "/generate", transport.Options{Params: params, Timeout: c.timeouts.Generate})
}

// Export compiles the current notes of an item. The body may be a PDF or a
// JSON fallback; callers classify it.
func (c *Client) Export(ctx context.Context, userID, itemID string) (*transport.Response, error) {
	if err := requireIDs(userID, itemID); err != nil {
		return nil, err
	}
	params := url.Values{"userId": {userID}, "itemId": {itemID}}
	return c.t.Do(ctx, http.MethodGet, "/export", transport.Options{Params: params, Kind: transport.KindBinary, Timeout: c.timeouts.Generate})
}

// FollowUp regenerates content of kind according to prompt.
func (c *Client) FollowUp(ctx context.Context, kind document.Kind, userID, itemID, prompt string) (*transport.Response, error) {
	if err := requireIDs(userID, itemID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.NewInvalidRequest("prompt is required")
	}
	params := url.Values{"userId": {userID}, "itemId": {itemID}, "task": {string(kind)}}
	return c.t.Do(ctx, http.MethodPost, "/follow-up", transport.Options{
		Params:  params,
		Body:    map[string]string{"prompt": prompt},
		Timeout: c.timeouts.Generate,
	})
}

// SaveRequest is the save body.
type SaveRequest struct {
	UserID   string `json:"userId"`
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
	Document any    `json:"document"`
}

// Save persists a document for revision and returns the raw acknowledgement.
func (c *Client) Save(ctx context.Context, kind document.Kind, req SaveRequest) (json.RawMessage, error) {
	if err := requireIDs(req.UserID, req.ItemID); err != nil {
		return nil, err
	}
	if req.ItemName == "" {
		return nil, errors.NewInvalidRequest("item name is required")
	}
	resp, err := c.t.Do(ctx, http.MethodPost, "/save/"+string(kind), transport.Options{Body: req, Timeout: c.timeouts.Save})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// Fetch lists saved items of kind.
func (c *Client) Fetch(ctx context.Context, kind document.Kind, userID string) ([]document.Summary, error) {
	if userID == "" {
		return nil, errors.NewAuthRequired()
	}
	resp, err := c.t.Do(ctx, http.MethodGet, "/fetch/"+string(kind), transport.Options{Params: url.Values{"userId": {userID}}})
	if err != nil {
		return nil, err
	}
	return decodeSummaries(resp.Body, kind)
}

// Load returns a saved mcqs or flashcards document. Saved notes load through Export.
func (c *Client) Load(ctx context.Context, kind document.Kind, userID, itemID string) (*transport.Response, error) {
	if err := requireIDs(userID, itemID); err != nil {
		return nil, err
	}
	if kind == document.KindNotes {
		return c.Export(ctx, userID, itemID)
	}
	params := url.Values{"userId": {userID}, "itemId": {itemID}}
	return c.t.Do(ctx, http.MethodGet, "/load/"+string(kind), transport.Options{Params: params})
}

// Delete removes a saved item.
func (c *Client) Delete(ctx context.Context, kind document.Kind, userID, itemID string) error {
	if err := requireIDs(userID, itemID); err != nil {
		return err
	}
	params := url.Values{"userId": {userID}, "itemId": {itemID}}
	_, err := c.t.Do(ctx, http.MethodDelete, "/delete/"+string(kind), transport.Options{Params: params})
	return err
}

func requireIDs(userID, itemID string) error {
	if userID == "" {
		return errors.NewAuthRequired()
	}
	if itemID == "" {
		return errors.NewInvalidRequest("itemId is required")
	}
	return nil
}

// decodeSummaries accepts {data:[...]}, {<kind>:[...]} or a bare array.
func decodeSummaries(body []byte, kind document.Kind) ([]document.Summary, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []document.Summary{}, nil
	}
	raw := json.RawMessage(trimmed)
	if trimmed[0] == '{' {
		obj, ok := document.ParseObject(trimmed)
		if !ok {
			return nil, errors.NewUnexpectedFormat(string(body))
		}
		arr, ok := obj.Array("data", string(kind), "items")
		if !ok {
			return []document.Summary{}, nil
		}
		raw = arr
	}
	var out []document.Summary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewUnexpectedFormat(string(body))
	}
	if out == nil {
		out = []document.Summary{}
	}
	return out, nil
}
