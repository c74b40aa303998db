package vm

import (
	"context"
	"sync"

	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/state"
	"github.com/tendermint/tendermint/libs/log"
)

// Machine is a deterministic interpreter of script packages. Every
// instruction yields a single field change, the changes are merged in
// order into the result.
type Machine struct {
	mu       sync.RWMutex
	packages map[string]*ScriptPackage
	logger   log.Logger
}

var _ Executor = (*Machine)(nil)

// NewMachine returns a machine with the built-in channel package installed.
func NewMachine(logger log.Logger) *Machine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	m := &Machine{
		packages: make(map[string]*ScriptPackage),
		logger:   logger.With("module", "vm"),
	}
	m.packages[ChannelPackage] = BuiltinPackage()
	return m
}

// Install adds a package. The built-in package cannot be replaced,
// installing the same package twice is accepted.
func (m *Machine) Install(pkg *ScriptPackage) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	if pkg.Name == ChannelPackage {
		return errors.ErrDuplicate.Newf("package %q is built in", pkg.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[pkg.Name] = pkg
	m.logger.Info("package installed", "package", pkg.Name, "scripts", len(pkg.Scripts))
	return nil
}

// Package returns an installed package.
func (m *Machine) Package(name string) (*ScriptPackage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pkg, ok := m.packages[name]
	return pkg, ok
}

// Execute runs the script. Every debit of the result is checked against the
// view, so a script never takes more than a resource holds.
func (m *Machine) Execute(ctx context.Context, view state.View, call Call) (*changeset.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, err.Error())
	}
	if err := call.Sender.Validate(); err != nil {
		return nil, errors.Wrap(err, "sender")
	}
	if err := call.Receiver.Validate(); err != nil {
		return nil, errors.Wrap(err, "receiver")
	}

	pkg, ok := m.Package(call.Package)
	if !ok {
		return nil, errors.ErrNotFound.Newf("package %q", call.Package)
	}
	script, ok := pkg.Script(call.Script)
	if !ok {
		return nil, errors.ErrNotFound.Newf("script %s.%s", call.Package, call.Script)
	}
	if uint32(len(call.Args)) != script.Arity {
		return nil, errors.ErrInput.Newf("script %s.%s takes %d arguments, got %d",
			call.Package, call.Script, script.Arity, len(call.Args))
	}
	prog, err := script.Program()
	if err != nil {
		return nil, err
	}

	result := changeset.NewChangeSetMut()
	for i, ins := range prog.Ops {
		step, err := m.step(ins, call)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s ops.%d", call.Package, call.Script, i)
		}
		if _, err := result.MergeWith(step); err != nil {
			return nil, errors.Wrapf(err, "%s.%s ops.%d", call.Package, call.Script, i)
		}
	}

	out := changeset.NewChangeSetMut()
	for _, e := range result.Entries() {
		changes := e.Changes.Clone()
		changes.FilterNone()
		if len(changes) == 0 {
			continue
		}
		if err := checkDebits(view, e.Path, changes); err != nil {
			return nil, err
		}
		out.Push(e.Path, changes)
	}
	cs, err := out.Freeze()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExecution, "%s.%s produced an invalid change set: %s", call.Package, call.Script, err)
	}
	return cs, nil
}

func (m *Machine) step(ins *Instruction, call Call) (*changeset.ChangeSetMut, error) {
	owner, other := call.Sender, call.Receiver
	if ins.Role == RoleReceiver {
		owner, other = other, owner
	}
	path := changeset.NewAccessPath(owner, ins.Tag)
	if ins.Tag == ChannelTag {
		path = ChannelPath(owner, other)
	}

	op := changeset.ChangeOp{Kind: changeset.OpKind(ins.Kind)}
	switch op.Kind {
	case changeset.OpPlus, changeset.OpMinus:
		op.Amount = ins.Amount
		if ins.ArgIndex > 0 {
			amount, err := DecodeU64(call.Args[ins.ArgIndex-1])
			if err != nil {
				return nil, err
			}
			op.Amount = amount
		}
		if op.Amount == 0 {
			op = changeset.None()
		}
	case changeset.OpUpdate:
		op.Value = ins.Value
		if ins.ArgIndex > 0 {
			op.Value = call.Args[ins.ArgIndex-1]
		}
		if op.Value == nil {
			op.Value = []byte{}
		}
	}

	step := changeset.NewChangeSetMut()
	step.Push(path, changeset.FieldChanges{{Accesses: changeset.Accesses(ins.Path), Op: op}})
	return step, nil
}

// checkDebits replays the changes on the stored resource, a root Update or
// Deletion replaces what the later field changes read.
func checkDebits(view state.View, path changeset.AccessPath, changes changeset.FieldChanges) error {
	res, err := view.Resource(path)
	if err != nil {
		return err
	}
	for _, c := range changes {
		if c.Accesses.IsRoot() {
			switch c.Op.Kind {
			case changeset.OpDeletion:
				res = nil
			case changeset.OpUpdate:
				if res, err = state.Decode(c.Op.Value); err != nil {
					return err
				}
			}
			continue
		}
		amount, ok := c.Op.AsMinus()
		if !ok {
			continue
		}
		have, err := res.Uint(c.Accesses)
		if err != nil {
			return err
		}
		if have < amount {
			return errors.ErrAmount.Newf("%s%s holds %d, cannot take %d", path, c.Accesses, have, amount)
		}
	}
	return nil
}
