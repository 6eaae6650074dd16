package reflectbind

import (
	"errors"
	"testing"

	"github.com/chazu/mirror/accessor"
)

func resolveMethod(tb testing.TB, r *Registry, name string) accessor.InvokeHandle {
	tb.Helper()
	d, err := r.MethodDescriptor("account", name)
	if err != nil {
		tb.Fatalf("MethodDescriptor(%s): %v", name, err)
	}
	h, err := r.ResolveCallable(d)
	if err != nil {
		tb.Fatalf("ResolveCallable(%s): %v", name, err)
	}
	return h
}

func TestResolveCallableMethod(t *testing.T) {
	r := registerAccount(t)
	h := resolveMethod(t, r, "Deposit")

	acct := &account{Balance: 10}
	res, err := h.Call(acct, []any{int64(5)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] != int64(15) {
		t.Errorf("result = %v, want 15", res[0])
	}
	if acct.Balance != 15 {
		t.Errorf("receiver balance = %d, want 15", acct.Balance)
	}
}

func TestResolveCallableMultiParam(t *testing.T) {
	r := registerAccount(t)
	h := resolveMethod(t, r, "Describe")

	res, err := h.Call(&account{Owner: "ada"}, []any{"acct: ", false})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] != "acct: ada" {
		t.Errorf("result = %v, want %q", res[0], "acct: ada")
	}
}

func TestResolveCallableErrorResult(t *testing.T) {
	r := registerAccount(t)
	h := resolveMethod(t, r, "Close")

	// An error returned by the target is a result value, not a
	// dispatch failure.
	res, err := h.Call(&account{Balance: 3}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] == nil {
		t.Fatal("unsettled account should return an error value")
	}
	if _, ok := res[0].(error); !ok {
		t.Errorf("result = %T, want error", res[0])
	}

	res, err = h.Call(&account{}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] != nil {
		t.Errorf("settled account result = %v, want nil", res[0])
	}
}

func TestResolveCallablePanicBecomesTargetError(t *testing.T) {
	r := registerAccount(t)
	h := resolveMethod(t, r, "Panics")

	_, err := h.Call(&account{}, nil)
	var te *accessor.TargetError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TargetError", err)
	}
	if te.Key != "method:reflectbind.account.Panics" {
		t.Errorf("Key = %q", te.Key)
	}
	if te.Cause == nil || te.Cause.Error() != "panic: kaboom" {
		t.Errorf("Cause = %v, want panic: kaboom", te.Cause)
	}
	if errors.Is(err, accessor.ErrInvalidArgument) {
		t.Error("a target panic is not an argument error")
	}
}

func TestResolveStaticAndConstructor(t *testing.T) {
	r := registerAccount(t)

	ds, err := r.StaticDescriptor("account", "Version")
	if err != nil {
		t.Fatalf("StaticDescriptor: %v", err)
	}
	hs, err := r.ResolveCallable(ds)
	if err != nil {
		t.Fatalf("ResolveCallable: %v", err)
	}
	res, err := hs.Call(nil, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] != "1.0" {
		t.Errorf("Version = %v, want 1.0", res[0])
	}

	dc, err := r.ConstructorDescriptor("account", "New")
	if err != nil {
		t.Fatalf("ConstructorDescriptor: %v", err)
	}
	hc, err := r.ResolveCallable(dc)
	if err != nil {
		t.Fatalf("ResolveCallable: %v", err)
	}
	res, err = hc.Call(nil, []any{"grace", int64(100)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	made, ok := res[0].(*account)
	if !ok {
		t.Fatalf("constructor returned %T, want *account", res[0])
	}
	if made.Owner != "grace" || made.Balance != 100 {
		t.Errorf("constructed %+v", made)
	}
}

func TestResolveCallableRejectsFieldDescriptor(t *testing.T) {
	r := registerAccount(t)
	d, err := r.FieldDescriptor("account", "Balance")
	if err != nil {
		t.Fatalf("FieldDescriptor: %v", err)
	}
	if _, err := r.ResolveCallable(d); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("ResolveCallable(field) = %v, want resolution error", err)
	}
	if _, err := r.ResolveField(mustMethodDesc(t, r, "Deposit")); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("ResolveField(method) = %v, want resolution error", err)
	}
}

func mustMethodDesc(tb testing.TB, r *Registry, name string) *accessor.Descriptor {
	tb.Helper()
	d, err := r.MethodDescriptor("account", name)
	if err != nil {
		tb.Fatalf("MethodDescriptor(%s): %v", name, err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Caller-aware variants and binding
// ---------------------------------------------------------------------------

func TestCallerVariantDiscovery(t *testing.T) {
	r := registerAccount(t, WithGate("ReadSecret", nil), WithGate("Rename", nil))

	d := mustMethodDesc(t, r, "ReadSecret")
	v, err := r.CallerVariant(d)
	if err != nil {
		t.Fatalf("CallerVariant: %v", err)
	}
	if v == nil {
		t.Fatal("ReadSecretAs should be discovered as a variant")
	}

	res, err := v.CallAs(accessor.NewCaller("alice"), &account{}, nil)
	if err != nil {
		t.Fatalf("CallAs: %v", err)
	}
	if res[0] != "s3cr3t:alice" {
		t.Errorf("result = %v, want s3cr3t:alice", res[0])
	}

	// RenameAs exists but its shape does not match Rename.
	dr := mustMethodDesc(t, r, "Rename")
	v, err = r.CallerVariant(dr)
	if err != nil {
		t.Fatalf("CallerVariant(Rename): %v", err)
	}
	if v != nil {
		t.Error("non-conforming sibling must not be treated as a variant")
	}
}

func TestCallerVariantOnlyForSensitive(t *testing.T) {
	r := registerAccount(t)

	// Without a gate the descriptor is not sensitive, so no variant is
	// consulted even though ReadSecretAs exists.
	d := mustMethodDesc(t, r, "ReadSecret")
	v, err := r.CallerVariant(d)
	if err != nil {
		t.Fatalf("CallerVariant: %v", err)
	}
	if v != nil {
		t.Error("insensitive descriptor should have no variant")
	}
}

func TestBindCallerGate(t *testing.T) {
	gate := func(c *accessor.Caller) error {
		if c.Name() == "mallory" {
			return errors.New("untrusted domain")
		}
		return nil
	}
	r := registerAccount(t, WithGate("Rename", gate))
	d := mustMethodDesc(t, r, "Rename")

	h, err := r.BindCaller(d, accessor.NewCaller("alice"))
	if err != nil {
		t.Fatalf("BindCaller(alice): %v", err)
	}
	res, err := h.Call(&account{Owner: "old"}, []any{"new"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] != "new" {
		t.Errorf("result = %v, want new", res[0])
	}

	if _, err := r.BindCaller(d, accessor.NewCaller("mallory")); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("BindCaller(mallory) = %v, want resolution error", err)
	}
	if _, err := r.BindCaller(d, nil); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("BindCaller(nil) = %v, want resolution error", err)
	}
}

func TestBindCallerRejectsInsensitive(t *testing.T) {
	r := registerAccount(t)
	d := mustMethodDesc(t, r, "Deposit")

	if _, err := r.BindCaller(d, accessor.NewCaller("a")); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("BindCaller on insensitive = %v, want resolution error", err)
	}
}

// ---------------------------------------------------------------------------
// Field handles
// ---------------------------------------------------------------------------

func TestFieldHandleLoadStore(t *testing.T) {
	r := registerAccount(t)
	d, err := r.FieldDescriptor("account", "Balance")
	if err != nil {
		t.Fatalf("FieldDescriptor: %v", err)
	}
	h, err := r.ResolveField(d)
	if err != nil {
		t.Fatalf("ResolveField: %v", err)
	}

	acct := &account{Balance: 42}
	v, err := h.Load(acct)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v != int64(42) {
		t.Errorf("Load = %v, want 42", v)
	}

	if err := h.Store(acct, int64(77)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if acct.Balance != 77 {
		t.Errorf("Balance = %d, want 77", acct.Balance)
	}
}

func TestFieldHandleValueReceiverStore(t *testing.T) {
	r := New()
	if err := r.Register("point", point{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, err := r.FieldDescriptor("point", "X")
	if err != nil {
		t.Fatalf("FieldDescriptor: %v", err)
	}
	h, err := r.ResolveField(d)
	if err != nil {
		t.Fatalf("ResolveField: %v", err)
	}

	// Loads work on a copy; a store into one would vanish, so it is
	// refused.
	if v, err := h.Load(point{X: 3}); err != nil || v != int32(3) {
		t.Errorf("Load = %v, %v, want 3", v, err)
	}
	if err := h.Store(point{X: 3}, int32(9)); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("Store on value receiver = %v, want type mismatch", err)
	}
}

func TestStaticVarHandle(t *testing.T) {
	limit := int64(500)
	r := New()
	if err := r.Register("bank", &account{}, WithStaticVar("Cap", &limit)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, err := r.StaticFieldDescriptor("bank", "Cap")
	if err != nil {
		t.Fatalf("StaticFieldDescriptor: %v", err)
	}
	h, err := r.ResolveField(d)
	if err != nil {
		t.Fatalf("ResolveField: %v", err)
	}

	if v, err := h.Load(nil); err != nil || v != int64(500) {
		t.Errorf("Load = %v, %v, want 500", v, err)
	}
	if err := h.Store(nil, int64(900)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if limit != 900 {
		t.Errorf("backing variable = %d, want 900", limit)
	}
}

func TestResolveFuncArityDrift(t *testing.T) {
	// A descriptor whose shape no longer matches the live method is a
	// resolution failure, not a crash.
	r := registerAccount(t)
	d, err := accessor.NewDescriptor(accessor.DescriptorSpec{
		Kind:  accessor.KindMethod,
		Owner: mustMethodDesc(t, r, "Deposit").Owner(),
		Name:  "Deposit",
	})
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	if _, err := r.ResolveCallable(d); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("drifted descriptor = %v, want resolution error", err)
	}
}
