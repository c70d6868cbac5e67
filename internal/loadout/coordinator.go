package loadout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/mutation"
	"vaultkeeper/internal/services"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/transfer"
)

// Transferer moves one instance.
type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) (transfer.Result, error)
}

// PlugInserter changes one socket.
type PlugInserter interface {
	InsertPlug(ctx context.Context, req mutation.Request) (mutation.Result, error)
}

// Result reports one run. Success holds only when nothing is missing and
// nothing failed.
type Result struct {
	Loadout     string     `json:"loadout"`
	CharacterID string     `json:"characterId"`
	Success     bool       `json:"success"`
	Equipped    []string   `json:"equipped"`
	Failed      []Failure  `json:"failed"`
	Missing     []string   `json:"missing"`
	Resolved    []Resolved `json:"resolved,omitempty"`
}

// Err returns a *PartialEquipError for an unsuccessful run and nil otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &PartialEquipError{Loadout: r.Loadout, Missing: r.Missing, Failed: r.Failed}
}

// Coordinator runs loadouts.
type Coordinator struct {
	store     *store.Store
	transfers Transferer
	plugs     PlugInserter
	defs      manifest.Lookup
	limits    transfer.Limits
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New builds a coordinator. Each run gets a transfer session bounded by limits.
func New(st *store.Store, transfers Transferer, plugs PlugInserter, defs manifest.Lookup, limits transfer.Limits, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		transfers: transfers,
		plugs:     plugs,
		defs:      defs,
		limits:    limits,
		logger:    logging.NewComponentLogger(logger, "loadout"),
		tracer:    otel.Tracer("vaultkeeper/loadout"),
	}
}

// Check resolves a loadout without any remote call.
func (c *Coordinator) Check(def Definition, characterID string) (Result, error) {
	if err := c.precheck(def, characterID); err != nil {
		return Result{}, err
	}
	p := newResolver(c.store.View(), c.defs, characterID).resolve(def)
	res := Result{
		Loadout:     def.Name,
		CharacterID: characterID,
		Missing:     p.missing,
		Resolved:    p.resolved(),
	}
	res.Success = len(res.Missing) == 0
	return res, nil
}

// Equip runs a loadout for one character. The returned error is a validation
// error for a malformed request, or the Result's PartialEquipError.
func (c *Coordinator) Equip(ctx context.Context, def Definition, characterID string, onProgress ProgressFunc) (Result, error) {
	if err := c.precheck(def, characterID); err != nil {
		return Result{}, err
	}
	ctx = services.WithCharacterID(ctx, characterID)
	ctx, span := c.tracer.Start(ctx, "loadout.equip", trace.WithAttributes(
		attribute.String("vaultkeeper.loadout", def.Name),
		attribute.String("vaultkeeper.character_id", characterID),
	))
	defer span.End()

	logger := logging.WithContext(ctx, c.logger).With(logging.String("loadout", def.Name))
	r := &run{
		c:       c,
		ctx:     ctx,
		logger:  logger,
		target:  characterID,
		session: transfer.NewSession(c.limits),
		prog: newProgress(func(step string, percent float64) {
			logger.Debug("loadout progress", logging.Args(logging.ProgressAttrs(step, percent)...)...)
			if onProgress != nil {
				onProgress(step, percent)
			}
		}),
		res: Result{Loadout: def.Name, CharacterID: characterID},
	}
	r.execute(def)

	res := r.res
	res.Success = len(res.Missing) == 0 && len(res.Failed) == 0
	span.SetAttributes(
		attribute.Bool("vaultkeeper.success", res.Success),
		attribute.Int("vaultkeeper.failed", len(res.Failed)),
		attribute.Int("vaultkeeper.missing", len(res.Missing)),
	)
	if res.Success {
		r.logger.Info("loadout equipped",
			logging.String(logging.FieldEventType, "loadout_equipped"),
			logging.Int("components", len(res.Equipped)),
		)
	} else {
		logging.WarnWithContext(r.logger, "loadout incomplete", "loadout_incomplete",
			logging.Int("equipped", len(res.Equipped)),
			logging.Int("failed", len(res.Failed)),
			logging.Int("missing", len(res.Missing)),
			logging.String(logging.FieldErrorHint, "check the itemized result; earlier steps are not rolled back"),
			logging.String(logging.FieldImpact, "character is partially equipped"),
		)
	}
	return res, res.Err()
}

func (c *Coordinator) precheck(def Definition, characterID string) error {
	if err := def.Validate(); err != nil {
		return err
	}
	for _, ch := range c.store.View().Characters() {
		if ch.CharacterID == characterID {
			return nil
		}
	}
	return services.Wrap(services.ErrValidation, "loadout", "equip", fmt.Sprintf("unknown character %q", characterID), nil)
}

type run struct {
	c       *Coordinator
	ctx     context.Context
	logger  *slog.Logger
	target  string
	session *transfer.Session
	prog    *progress
	res     Result
}

func (r *run) execute(def Definition) {
	r.prog.report(PhaseResolve, 0, 1, "resolving components")
	p := newResolver(r.c.store.View(), r.c.defs, r.target).resolve(def)
	r.res.Resolved = p.resolved()
	if len(p.missing) > 0 {
		r.res.Missing = p.missing
		r.prog.finish("missing components")
		return
	}
	r.prog.report(PhaseResolve, 1, 1, "components resolved")

	subclassReady := false
	if p.subclass != nil {
		subclassReady = r.equip(PhaseSubclass, *p.subclass)
	}
	r.prog.report(PhaseSubclass, 1, 1, "subclass")

	r.configureSubclass(p, subclassReady)

	gear := append(append([]Resolved(nil), p.weapons...), piecesOf(p.armor)...)
	for i, item := range gear {
		r.equip(PhaseGear, item)
		r.prog.report(PhaseGear, i+1, len(gear), item.Component)
	}
	r.prog.report(PhaseGear, 1, 1, "gear")

	r.applyMods(p.armor)
	r.prog.finish("done")
}

func piecesOf(armor []armorPlan) []Resolved {
	out := make([]Resolved, len(armor))
	for i, a := range armor {
		out[i] = a.piece
	}
	return out
}

// equip moves an instance onto the character's equipment.
func (r *run) equip(phase Phase, item Resolved) bool {
	if err := r.ctx.Err(); err != nil {
		r.fail(item.Component, phase, "cancelled", err)
		return false
	}
	_, err := r.c.transfers.Transfer(r.ctx, transfer.Request{
		InstanceID: item.InstanceID,
		ItemHash:   item.ItemHash,
		Target:     inventory.Equipped(r.target),
		Session:    r.session,
	})
	if err != nil {
		r.fail(item.Component, phase, reasonOf(err), err)
		return false
	}
	r.res.Equipped = append(r.res.Equipped, item.Component)
	return true
}

// configureSubclass sets abilities, then aspects, then fragments. Fragment
// slots open only for aspects actually in place.
func (r *run) configureSubclass(p plan, ready bool) {
	total := len(p.abilities) + len(p.aspects) + len(p.fragments)
	done := 0
	step := func(label string) {
		done++
		r.prog.report(PhaseAbilities, done, total, label)
	}
	if total == 0 {
		r.prog.report(PhaseAbilities, 1, 1, "abilities")
		return
	}
	if !ready || p.subclass == nil {
		for _, label := range subclassLabels(p) {
			r.fail(label, PhaseAbilities, "subclass not equipped", nil)
			step(label)
		}
		return
	}
	sc := *p.subclass
	def, _ := r.resolveDef(sc.ItemHash)

	for _, ab := range p.abilities {
		sockets := def.SocketsOf(ab.category)
		if len(sockets) == 0 {
			r.fail(ab.plug.label, PhaseAbilities, fmt.Sprintf("subclass has no %s socket", ab.category), nil)
		} else {
			r.insert(PhaseAbilities, sc.InstanceID, sockets[0].Index, ab.plug)
		}
		step(ab.plug.label)
	}

	aspectSockets := def.SocketsOf(manifest.SocketAspect)
	for i, aspect := range p.aspects {
		if i >= len(aspectSockets) {
			r.fail(aspect.label, PhaseAbilities, "no free aspect socket", nil)
		} else {
			r.insert(PhaseAbilities, sc.InstanceID, aspectSockets[i].Index, aspect)
		}
		step(aspect.label)
	}

	capacity := r.fragmentCapacity(sc.InstanceID, aspectSockets)
	fragmentSockets := def.SocketsOf(manifest.SocketFragment)
	for i, fragment := range p.fragments {
		switch {
		case i >= capacity:
			r.fail(fragment.label, PhaseAbilities, fmt.Sprintf("exceeds fragment capacity %d", capacity), nil)
		case i >= len(fragmentSockets):
			r.fail(fragment.label, PhaseAbilities, "no free fragment socket", nil)
		default:
			r.insert(PhaseAbilities, sc.InstanceID, fragmentSockets[i].Index, fragment)
		}
		step(fragment.label)
	}
}

// fragmentCapacity sums the capacity of the aspects currently plugged in.
func (r *run) fragmentCapacity(instanceID string, aspectSockets []manifest.SocketEntry) int {
	inst, ok := r.c.store.View().Instance(instanceID)
	if !ok {
		return 0
	}
	total := 0
	for _, entry := range aspectSockets {
		socket, ok := inst.Socket(entry.Index)
		if !ok || socket.PlugHash == 0 {
			continue
		}
		if def, ok := r.resolveDef(socket.PlugHash); ok {
			total += def.FragmentCapacity
		}
	}
	return total
}

// applyMods puts each piece's mods into the first compatible free armor mod
// socket.
func (r *run) applyMods(armor []armorPlan) {
	total := 0
	for _, a := range armor {
		total += len(a.mods)
	}
	if total == 0 {
		r.prog.report(PhaseMods, 1, 1, "mods")
		return
	}
	done := 0
	for _, a := range armor {
		def, _ := r.resolveDef(a.piece.ItemHash)
		used := make(map[int]bool)
		for _, mod := range a.mods {
			label := mod.label + " on " + a.piece.Component
			index, ok := r.modSocket(def, mod, used)
			if !ok {
				r.fail(label, PhaseMods, "no compatible mod socket", nil)
			} else {
				used[index] = true
				r.insertLabeled(PhaseMods, a.piece.InstanceID, index, mod, label)
			}
			done++
			r.prog.report(PhaseMods, done, total, label)
		}
	}
}

func (r *run) modSocket(def manifest.Definition, mod resolvedPlug, used map[int]bool) (int, bool) {
	for _, entry := range def.SocketsOf(manifest.SocketArmorMod) {
		if used[entry.Index] {
			continue
		}
		if entry.PlugSetHash != 0 {
			set, ok := r.c.defs.PlugSet(entry.PlugSetHash)
			if ok && !set.Contains(mod.def.Hash) {
				continue
			}
		}
		return entry.Index, true
	}
	return 0, false
}

func (r *run) insert(phase Phase, instanceID string, socketIndex int, plug resolvedPlug) {
	r.insertLabeled(phase, instanceID, socketIndex, plug, plug.label)
}

func (r *run) insertLabeled(phase Phase, instanceID string, socketIndex int, plug resolvedPlug, label string) {
	if err := r.ctx.Err(); err != nil {
		r.fail(label, phase, "cancelled", err)
		return
	}
	_, err := r.c.plugs.InsertPlug(r.ctx, mutation.Request{
		InstanceID:  instanceID,
		SocketIndex: socketIndex,
		PlugHash:    plug.def.Hash,
		CharacterID: r.target,
	})
	if err != nil {
		r.fail(label, phase, reasonOf(err), err)
		return
	}
	r.res.Equipped = append(r.res.Equipped, label)
}

func (r *run) fail(component string, phase Phase, reason string, err error) {
	r.res.Failed = append(r.res.Failed, Failure{Component: component, Phase: phase, Reason: reason, Err: err})
	attrs := []logging.Attr{
		logging.String("component_name", component),
		logging.String("phase", string(phase)),
		logging.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	r.logger.Debug("loadout step failed", logging.Args(attrs...)...)
}

func (r *run) resolveDef(hash uint32) (manifest.Definition, bool) {
	if r.c.defs == nil {
		return manifest.Definition{}, false
	}
	return r.c.defs.Resolve(hash)
}

func subclassLabels(p plan) []string {
	var out []string
	for _, ab := range p.abilities {
		out = append(out, ab.plug.label)
	}
	for _, pl := range p.aspects {
		out = append(out, pl.label)
	}
	for _, pl := range p.fragments {
		out = append(out, pl.label)
	}
	return out
}

// reasonOf turns an engine error into a short, user-facing reason.
func reasonOf(err error) string {
	var te *transfer.TransferError
	var me *mutation.SocketMutationError
	switch {
	case errors.As(err, &te):
		return fmt.Sprintf("%s at %s", te.Reason, te.Hop)
	case errors.As(err, &me):
		return "rolled back: " + errors.Unwrap(me).Error()
	case errors.Is(err, transfer.ErrNoRoute):
		return "equipped on another character"
	case errors.Is(err, transfer.ErrInFlight), errors.Is(err, mutation.ErrMutationPending):
		return "another change for this item is in progress"
	case errors.Is(err, transfer.ErrSessionLimit):
		return "transfer budget exhausted"
	default:
		return err.Error()
	}
}
