package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/vntrieu/steamcord/internal/auth"
	"github.com/vntrieu/steamcord/internal/linking"
	"github.com/vntrieu/steamcord/internal/progression"
	"github.com/vntrieu/steamcord/internal/ratelimit"
	"github.com/vntrieu/steamcord/internal/registry"
	"github.com/vntrieu/steamcord/internal/store"
)

// Store is the slice of the profile store the bridge handlers need
// (implemented by store.ProfileStore).
type Store interface {
	FindProfileByIdentity(ctx context.Context, id store.Identity) (*store.Profile, error)
	CreateProfile(ctx context.Context, id store.Identity, displayName string) (*store.Profile, error)
}

// Result is the explicit outcome of one handler execution. The dispatch
// boundary translates it into a response envelope; handlers never panic by
// contract, and a recover guard converts any fault that slips through.
type Result struct {
	Success bool
	Content string
	Err     string
}

func failure(format string, args ...interface{}) Result {
	return Result{Success: false, Err: fmt.Sprintf(format, args...)}
}

// Dispatcher authenticates, routes, and executes inbound bridge messages.
type Dispatcher struct {
	store     Store
	registry  *registry.Registry
	engine    *progression.Engine
	linker    *linking.Linker
	validator auth.Validator
	limiter   ratelimit.Limiter
}

// NewDispatcher creates a Dispatcher. limiter may be nil to disable
// per-identity message limiting.
func NewDispatcher(st Store, reg *registry.Registry, engine *progression.Engine, linker *linking.Linker, validator auth.Validator, limiter ratelimit.Limiter) *Dispatcher {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &Dispatcher{
		store:     st,
		registry:  reg,
		engine:    engine,
		linker:    linker,
		validator: validator,
		limiter:   limiter,
	}
}

// Dispatch processes one raw inbound frame end to end: parse, authenticate,
// route, execute, respond. Malformed and unauthenticated traffic is dropped
// without a response so probing clients get no distinguishing signal. A
// response is written only when the message carried a correlation id.
func (d *Dispatcher) Dispatch(ctx context.Context, client *Client, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("dispatch: dropping malformed message from %s: %v", client.RemoteAddr, err)
		return
	}
	if msg.Type == "" {
		log.Printf("dispatch: dropping message without type from %s", client.RemoteAddr)
		return
	}

	// Per-message authentication gate; there is no anonymous message class.
	if msg.SteamID == "" || msg.Token == "" {
		log.Printf("dispatch: dropping unauthenticated %s message from %s", msg.Type, client.RemoteAddr)
		return
	}
	if err := d.validator.Validate(ctx, msg.SteamID, msg.Token); err != nil {
		log.Printf("dispatch: auth failed for steam_id=%s type=%s: %v", msg.SteamID, msg.Type, err)
		return
	}

	if !knownType(msg.Type) {
		if msg.CorrelationID != "" {
			client.Send(&OutboundMessage{
				Type:          ResponseTypeError,
				CorrelationID: msg.CorrelationID,
				Success:       false,
				Error:         fmt.Sprintf("Unknown message type: %s", msg.Type),
			})
		}
		return
	}

	var res Result
	if allowed, _ := d.limiter.Allow(msg.SteamID); !allowed {
		res = failure("rate limit exceeded; try again later")
	} else {
		res = d.execute(ctx, &msg)
	}

	if msg.CorrelationID == "" {
		return
	}
	client.Send(&OutboundMessage{
		Type:          responseType(msg.Type),
		CorrelationID: msg.CorrelationID,
		Success:       res.Success,
		Content:       res.Content,
		Error:         res.Err,
	})
}

// knownType reports whether the type belongs to the closed message set.
func knownType(t MessageType) bool {
	switch t {
	case TypeFetchProfile, TypeLinkAccount, TypeGrantXP, TypePlayerJoin, TypePlayerLeave:
		return true
	}
	return false
}

// execute routes the authenticated message to its handler. A misbehaving
// handler is contained here: its fault becomes a failure result and the
// connection stays usable.
func (d *Dispatcher) execute(ctx context.Context, msg *InboundMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: handler fault type=%s steam_id=%s: %v", msg.Type, msg.SteamID, r)
			res = failure("internal handler fault: %v", r)
		}
	}()

	identity := store.Identity{Platform: store.PlatformSteam, PlatformID: msg.SteamID}

	switch msg.Type {
	case TypeFetchProfile:
		return d.handleFetchProfile(ctx, identity, msg.content())
	case TypeLinkAccount:
		return d.handleLinkAccount(ctx, identity, msg.content())
	case TypeGrantXP:
		return d.handleGrantXP(ctx, msg.content())
	case TypePlayerJoin:
		return d.handlePlayerJoin(ctx, identity, msg.content())
	case TypePlayerLeave:
		return d.handlePlayerLeave(ctx, identity, msg.content())
	default:
		// Unreachable: knownType gates routing
		return failure("unknown message type: %s", msg.Type)
	}
}

// handleFetchProfile returns the profile owning the identity, creating a
// fresh one (level 1, zero experience) on first contact.
func (d *Dispatcher) handleFetchProfile(ctx context.Context, identity store.Identity, content string) Result {
	displayName := strings.TrimSpace(content)
	if displayName == "" {
		return failure("display name is required")
	}

	p, err := d.store.FindProfileByIdentity(ctx, identity)
	if err != nil {
		return failure("load profile: %v", err)
	}
	if p == nil {
		p, err = d.store.CreateProfile(ctx, identity, displayName)
		if err != nil {
			return failure("create profile: %v", err)
		}
		log.Printf("created profile id=%d for steam_id=%s", p.ID, identity.PlatformID)
	}
	return profileResult(p)
}

// handleLinkAccount resolves the pairing code and runs the merge procedure.
func (d *Dispatcher) handleLinkAccount(ctx context.Context, identity store.Identity, content string) Result {
	code := strings.TrimSpace(content)
	if code == "" {
		return failure("link code is required")
	}

	r := d.linker.LinkAccounts(ctx, identity, code)
	if !r.Success {
		return Result{Success: false, Err: r.Message}
	}

	// Refresh the presence cache if the player is online
	if d.registry.Get(identity.PlatformID) != nil {
		if p, err := d.store.FindProfileByIdentity(ctx, identity); err == nil && p != nil {
			d.registry.Put(identity.PlatformID, p)
		}
	}
	return Result{Success: true, Content: r.Message}
}

// handleGrantXP parses "<profileId> <amount>" and applies the grant.
func (d *Dispatcher) handleGrantXP(ctx context.Context, content string) Result {
	fields := strings.Fields(content)
	if len(fields) != 2 {
		return failure("expected content \"<profileId> <amount>\"")
	}
	profileID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return failure("invalid profile id %q", fields[0])
	}
	amount, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return failure("invalid amount %q", fields[1])
	}
	if amount <= 0 {
		return failure("amount must be positive")
	}

	p, err := d.engine.GiveExperience(ctx, profileID, amount, nil)
	if err != nil {
		return failure("grant experience: %v", err)
	}
	if p == nil {
		return failure("profile %d not found", profileID)
	}
	d.registry.Refresh(p)
	return profileResult(p)
}

// handlePlayerJoin caches the identity's profile snapshot in the registry.
func (d *Dispatcher) handlePlayerJoin(ctx context.Context, identity store.Identity, content string) Result {
	if strings.TrimSpace(content) == "" {
		return failure("content is required")
	}
	p, err := d.store.FindProfileByIdentity(ctx, identity)
	if err != nil {
		return failure("load profile: %v", err)
	}
	if p == nil {
		return failure("profile not found for steam_id %s", identity.PlatformID)
	}
	d.registry.Put(identity.PlatformID, p)
	return profileResult(p)
}

// handlePlayerLeave drops the identity's presence entry.
func (d *Dispatcher) handlePlayerLeave(ctx context.Context, identity store.Identity, content string) Result {
	if strings.TrimSpace(content) == "" {
		return failure("content is required")
	}
	p, err := d.store.FindProfileByIdentity(ctx, identity)
	if err != nil {
		return failure("load profile: %v", err)
	}
	if p == nil {
		return failure("profile not found for steam_id %s", identity.PlatformID)
	}
	d.registry.Remove(identity.PlatformID)
	return Result{Success: true, Content: fmt.Sprintf("profile %d left", p.ID)}
}

func profileResult(p *store.Profile) Result {
	body, err := json.Marshal(p)
	if err != nil {
		return failure("encode profile: %v", err)
	}
	return Result{Success: true, Content: string(body)}
}
