package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vaultkeeper/internal/config"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
)

const defaultHTTPTimeout = 20 * time.Second

// Authority is everything the engine consumes from the remote authority.
type Authority interface {
	FetchProfile(ctx context.Context) (inventory.Snapshot, error)
	MoveItem(ctx context.Context, instanceID string, itemHash uint32, from, to inventory.Location) error
	EquipItem(ctx context.Context, instanceID, characterID string) error
	InsertSocketPlug(ctx context.Context, instanceID string, socketIndex int, plugHash uint32, characterID string) (bool, error)
	SetLockState(ctx context.Context, instanceID, characterID string, locked bool) (bool, error)
}

// Config captures what the client needs to reach one account.
type Config struct {
	BaseURL        string
	APIKey         string
	AccessToken    string
	MembershipType int
	MembershipID   string
	Timeout        time.Duration
}

// Client is the HTTP implementation of Authority.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "remote")
	}
}

// NewClient constructs a client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			AccessToken:    strings.TrimSpace(cfg.AccessToken),
			MembershipType: cfg.MembershipType,
			MembershipID:   strings.TrimSpace(cfg.MembershipID),
			Timeout:        timeout,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(nil, "remote"),
		tracer:     otel.Tracer("vaultkeeper/remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the remote config section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return NewClient(Config{
		BaseURL:        cfg.Remote.BaseURL,
		APIKey:         cfg.Remote.APIKey,
		AccessToken:    cfg.Remote.AccessToken,
		MembershipType: cfg.Remote.MembershipType,
		MembershipID:   cfg.Remote.MembershipID,
		Timeout:        cfg.RemoteTimeout(),
	}, WithLogger(logger))
}

type envelope struct {
	Response        json.RawMessage `json:"Response"`
	ErrorCode       int             `json:"ErrorCode"`
	ErrorStatus     string          `json:"ErrorStatus"`
	Message         string          `json:"Message"`
	ThrottleSeconds int             `json:"ThrottleSeconds"`
}

// FetchProfile reads and validates the account profile.
func (c *Client) FetchProfile(ctx context.Context) (inventory.Snapshot, error) {
	path := fmt.Sprintf("/Destiny2/%d/Profile/%s/?components=%s", c.cfg.MembershipType, c.cfg.MembershipID, profileComponents)
	raw, err := c.do(ctx, "fetch_profile", http.MethodGet, path, nil)
	if err != nil {
		return inventory.Snapshot{}, err
	}
	return DecodeProfile(raw)
}

// MoveItem issues one transfer. The authority moves between the vault and a
// character only; routing is the caller's job.
func (c *Client) MoveItem(ctx context.Context, instanceID string, itemHash uint32, from, to inventory.Location) error {
	var toVault bool
	var characterID string
	switch {
	case from.IsVault() && to.Kind == inventory.KindInventory:
		characterID = to.CharacterID
	case from.Kind == inventory.KindInventory && to.IsVault():
		toVault, characterID = true, from.CharacterID
	default:
		return &Error{Op: "move_item", Kind: KindInvalidState, Message: fmt.Sprintf("no direct move %s -> %s", from, to)}
	}
	body := map[string]any{
		"itemReferenceHash": itemHash,
		"stackSize":         1,
		"transferToVault":   toVault,
		"itemId":            instanceID,
		"characterId":       characterID,
		"membershipType":    c.cfg.MembershipType,
	}
	_, err := c.do(ctx, "move_item", http.MethodPost, "/Destiny2/Actions/Items/TransferItem/", body)
	return err
}

// EquipItem equips an item already in the character's inventory.
func (c *Client) EquipItem(ctx context.Context, instanceID, characterID string) error {
	body := map[string]any{
		"itemId":         instanceID,
		"characterId":    characterID,
		"membershipType": c.cfg.MembershipType,
	}
	_, err := c.do(ctx, "equip_item", http.MethodPost, "/Destiny2/Actions/Items/EquipItem/", body)
	return err
}

// InsertSocketPlug replaces the plug in one socket.
func (c *Client) InsertSocketPlug(ctx context.Context, instanceID string, socketIndex int, plugHash uint32, characterID string) (bool, error) {
	body := map[string]any{
		"plug": map[string]any{
			"socketIndex":     socketIndex,
			"socketArrayType": 0,
			"plugItemHash":    plugHash,
		},
		"itemId":         instanceID,
		"characterId":    characterID,
		"membershipType": c.cfg.MembershipType,
	}
	raw, err := c.do(ctx, "insert_socket_plug", http.MethodPost, "/Destiny2/Actions/Items/InsertSocketPlugFree/", body)
	if err != nil {
		return false, err
	}
	return accepted(raw), nil
}

// SetLockState locks or unlocks an item.
func (c *Client) SetLockState(ctx context.Context, instanceID, characterID string, locked bool) (bool, error) {
	body := map[string]any{
		"state":          locked,
		"itemId":         instanceID,
		"characterId":    characterID,
		"membershipType": c.cfg.MembershipType,
	}
	raw, err := c.do(ctx, "set_lock_state", http.MethodPost, "/Destiny2/Actions/Items/SetLockState/", body)
	if err != nil {
		return false, err
	}
	return accepted(raw), nil
}

// accepted treats only an explicit false response as a decline.
func accepted(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) != "false"
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "remote."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method)))
	defer span.End()

	raw, err := c.roundTrip(ctx, op, method, path, body, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		var rerr *Error
		if errors.As(err, &rerr) {
			span.SetAttributes(attribute.String("vaultkeeper.error_kind", string(rerr.Kind)))
		}
	}
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body any, span trace.Span) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Op: op, Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransient, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)
	c.logger.Debug("remote call",
		logging.String("op", op),
		logging.Int("http_status", resp.StatusCode),
		logging.Int("error_code", env.ErrorCode),
		logging.Duration("elapsed", time.Since(start)),
	)

	switch {
	case decodeErr == nil && env.ErrorCode == codeSuccess && resp.StatusCode < 300:
		return env.Response, nil
	case decodeErr == nil && env.ErrorCode != 0 && env.ErrorCode != codeSuccess:
		return nil, &Error{
			Op:         op,
			Kind:       kindForCode(env.ErrorCode),
			Code:       env.ErrorCode,
			Status:     env.ErrorStatus,
			Message:    env.Message,
			HTTPStatus: resp.StatusCode,
			RetryAfter: time.Duration(env.ThrottleSeconds) * time.Second,
		}
	case resp.StatusCode >= 300:
		return nil, &Error{Op: op, Kind: kindForStatus(resp.StatusCode), HTTPStatus: resp.StatusCode, Message: snippet(data)}
	default:
		if decodeErr == nil {
			decodeErr = errors.New("response has no error code")
		}
		return nil, &Error{Op: op, Kind: KindMalformed, HTTPStatus: resp.StatusCode, Err: decodeErr}
	}
}

func snippet(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
